//go:build !stdlog && !nolog

package build

// LoggingType is a log type that only writes to the backend installed by
// the caller.
const LoggingType = LogTypeDefault
