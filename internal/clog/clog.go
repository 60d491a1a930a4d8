// Package clog provides the single package-global logger the rest of
// the repo uses, gated by the --verbose flag of spec §6. Mirrors the
// global-zap-logger style of bnb-chain/tss-lib and drand.
package clog

import (
	"go.uber.org/zap"
)

var logger *zap.SugaredLogger = zap.NewNop().Sugar()

// Init configures the package-global logger. verbose selects a
// development encoder with debug level; otherwise only warnings and
// above reach stderr.
func Init(verbose bool) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	l, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op logger rather than fail the whole
		// command over a logging misconfiguration.
		logger = zap.NewNop().Sugar()
		return
	}
	logger = l.Sugar()
}

// L returns the package-global logger.
func L() *zap.SugaredLogger { return logger }

// WithTraceID attaches a trace_id field to the package-global logger so
// every subsequent L() call within the same CLI invocation carries it,
// for log correlation across a command's requests.
func WithTraceID(traceID string) {
	logger = logger.With("trace_id", traceID)
}

// Sync flushes buffered log entries; call from main's defer.
func Sync() {
	_ = logger.Sync()
}
