package logger

import "go.uber.org/zap/zapcore"

// Verbosity level constants for the CLI's repeatable -v flag.
const (
	VerbosityUser  = 0 // no flags: warnings and errors only
	VerbosityInfo  = 1 // -v: informational messages
	VerbosityDebug = 2 // -vv: per-message protocol tracing
)

// VerbosityToLevel maps a -v flag count to a zap level.
func VerbosityToLevel(verbosity int) zapcore.Level {
	switch {
	case verbosity <= VerbosityUser:
		return zapcore.WarnLevel
	case verbosity == VerbosityInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
