package tenzikcore

import (
	"sync"

	"go.uber.org/zap"

	"github.com/Nitefawkes/TenzikCore/capsule"
	"github.com/Nitefawkes/TenzikCore/engine"
	"github.com/Nitefawkes/TenzikCore/event"
	"github.com/Nitefawkes/TenzikCore/receipt"
	"github.com/Nitefawkes/TenzikCore/sandbox"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the root package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures logging for the whole module: the root package
// and every subsystem package. Call it once before building runtimes.
func SetLogger(l *zap.Logger) {
	logger = l
	capsule.SetLogger(l)
	sandbox.SetLogger(l)
	engine.SetLogger(l)
	receipt.SetLogger(l)
	event.SetLogger(l)
}
