//go:build trace && !nolog && !debug

package build

// LogLevel specifies the trace log level.
var LogLevel = "trace"
