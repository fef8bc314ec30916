// Package logger wraps zap with the verbosity ladder and console theming
// protohackd's subsystems expect from a CLI-driven server binary.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Global logger instance. Safe to use before Initialize: defaults to a no-op
// sink so early package-init code never nil-derefs.
var Logger = zap.NewNop().Sugar()

// Options controls how Initialize builds the global logger.
type Options struct {
	JSON      bool
	Verbosity int
	Theme     string
}

// Initialize rebuilds the global logger from opts. Safe to call again on
// config reload (e.g. a hot-reloaded log.level / log.theme).
func Initialize(opts Options) error {
	SetTheme(opts.Theme)

	var zl *zap.Logger
	var err error
	if opts.JSON {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(VerbosityToLevel(opts.Verbosity))
		zl, err = cfg.Build()
	} else {
		zl = zap.New(zapcore.NewCore(
			newMinimalEncoder(),
			zapcore.AddSync(os.Stdout),
			VerbosityToLevel(opts.Verbosity),
		))
	}
	if err != nil {
		return err
	}
	Logger = zl.Sugar()
	return nil
}

// Named returns a child logger tagged with a component field, the
// convention every internal/* package uses to scope its log lines.
func Named(component string) *zap.SugaredLogger {
	return Logger.With(FieldComponent, component)
}
