// Package logging builds the process logger: zap underneath, logr on top.
package logging

import (
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels for logger.V(...).
const (
	VERBOSE = 1
	DEBUG   = 2
	TRACE   = 3
)

// ParseLevel maps a level name to a logr verbosity. "info" is 0; "quiet"
// maps below zero so only errors are printed.
func ParseLevel(name string) (int, error) {
	switch strings.ToLower(name) {
	case "", "info":
		return 0, nil
	case "quiet", "error":
		return -2, nil
	case "verbose":
		return VERBOSE, nil
	case "debug":
		return DEBUG, nil
	case "trace":
		return TRACE, nil
	}
	return 0, fmt.Errorf("logging: unknown level %q", name)
}

// New returns a console logger on stderr at the given verbosity.
func New(verbosity int) (logr.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	z, err := cfg.Build()
	if err != nil {
		return logr.Discard(), err
	}
	return zapr.NewLogger(z), nil
}

// NewTestLogger creates a dev-mode logger at TRACE for tests.
func NewTestLogger() logr.Logger {
	log, err := New(TRACE)
	if err != nil {
		return logr.Discard()
	}
	return log
}
