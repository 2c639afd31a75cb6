// File: internal/ipclog/ipclog.go
// Package ipclog is the structured-logging seam shared by every
// component in the transport plane. It wraps github.com/rs/zerolog,
// grounded on the zerolog usage in the logiface adapters
// (joeycumines-go-utilpkg/logiface/zerolog), generalised here to a
// plain package-level logger rather than a pluggable facade, since the
// transport has exactly one log sink per process.
// Author: natyamatsya
// License: Apache-2.0
package ipclog

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log zerolog.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Configure replaces the package logger, e.g. to switch to a console
// writer in development or raise/lower the level from Config.
func Configure(l zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	log = l
}

// SetLevel adjusts the minimum emitted level without replacing the
// whole logger.
func SetLevel(level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	log = log.Level(level)
}

// Component returns a child logger tagged with a component name, the
// pattern used throughout the transport ("nsm", "xpp", "ring",
// "chunkstore", "reaper", "ipc") so log lines can be filtered per
// subsystem.
func Component(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log.With().Str("component", name).Logger()
}

// Logger returns the current package-level logger directly.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}
