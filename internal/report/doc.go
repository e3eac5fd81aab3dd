// Package report renders run reports and store statistics.
//
// This package contains writers for different output formats:
//   - SimpleWriter: Human-readable text output for terminal display
//   - JSONWriter: Structured JSON output for tool integration
//   - MarkdownWriter: Markdown with a mermaid chart for sharing
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
