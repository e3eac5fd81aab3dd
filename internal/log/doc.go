// Package log provides the slog setup used by productingest.
//
// Every logger built here wraps its output handler in a SecureHandler that
// masks values which must never end up in a log file:
//   - cookie and header values carried by the API strategy credentials
//   - authorization and token style attributes
//   - database connection strings that embed a password
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("harvested session", "cookie", "SN=abc")  // cookie=***REDACTED***
//
// Verbose selects the Debug level; otherwise Info is used so that the
// per-page progress of an ingestion run stays visible.
package log
