// Package logger constructs the structured logger a pkg/tdb Handle holds:
// a go.uber.org/zap *zap.SugaredLogger, taken from the LOG open attribute
// or built by New. The internal components take no logger.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-configured *zap.SugaredLogger tagged with the
// given service name. It is the default logger used when a caller's open
// attributes don't supply a LOG capability (see pkg/attrs.Log).
func New(service string) *zap.SugaredLogger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return base.Named(service).Sugar()
}

// NewFromCore builds a *zap.SugaredLogger around a caller-supplied
// zapcore.Core. This is how the LOG open attribute plugs an external log
// sink into the store: the attribute carries a zapcore.Core and every
// subsequent Infow/Errorw call from the store reaches the caller's sink
// directly, with no intermediate buffering.
func NewFromCore(service string, core zapcore.Core) *zap.SugaredLogger {
	if core == nil {
		return New(service)
	}
	return zap.New(core).Named(service).Sugar()
}

// Nop returns a logger that discards everything. Open does not use it:
// without attrs.Log it falls back to New.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
