// Package observability builds the process logger.
//
// Logs are structured (zap). JSON output is used in deployed environments and
// a colored console encoder is available for local development.
package observability
