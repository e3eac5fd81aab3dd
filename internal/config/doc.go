// Package config provides configuration structures and utilities for productingest.
// It defines the options that drive an ingestion run: which acquisition strategy
// to use, how pagination and retries behave, where records are stored and how
// run reports are written.
package config
