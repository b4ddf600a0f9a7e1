// Package logging sets up the process-wide slog logger. gist keeps the
// teacher's habit of a single debug-gate environment variable rather than a
// full verbosity flag hierarchy.
package logging

import (
	"log/slog"
	"os"
)

// DebugEnvVar mirrors the teacher's SIFT_DEBUG escape hatch, renamed to the
// new project name.
const DebugEnvVar = "GIST_DEBUG"

// New builds the process-wide logger. Debug level is enabled when
// GIST_DEBUG is set to a non-empty value.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv(DebugEnvVar) != "" {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}
