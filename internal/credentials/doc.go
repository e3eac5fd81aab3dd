// Package credentials supplies the cookies and headers the API strategy sends.
//
// A Provider is consulted once per API scraper construction, never per page.
// Static serves values from the configuration file, Harvester collects the
// session cookies the site sets on its root page, and Merge layers one
// provider over another.
package credentials
