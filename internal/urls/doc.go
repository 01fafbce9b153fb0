// Package urls provides centralized constants for documentation URLs shown
// in troubleshooting output.
package urls
