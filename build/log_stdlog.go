//go:build stdlog && !nolog

package build

// LoggingType is a log type that writes to stdout.
const LoggingType = LogTypeStdOut
