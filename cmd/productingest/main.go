// Package main provides the entry point for the productingest CLI.
//
// productingest collects product listings from Flipkart search results,
// normalizes them into canonical records and stores each product once.
//
// Usage:
//
//	productingest ingest "Mobile Phones"
//	productingest ingest --strategy both --pages 3 "Laptops" "Tablets"
//	productingest stats
//
// See --help for all available options.
package main

func main() {
	Execute()
}
