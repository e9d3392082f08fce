//go:build debug && !nolog

package build

// LogLevel specifies the debug log level.
var LogLevel = "debug"
