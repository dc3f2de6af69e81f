// Package logging assembles structured slog loggers and formatting helpers used
// across mediaforge.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so worker code tags log lines with job ids,
// operation kinds, and worker slots. NewNop provides a silent logger for tests.
package logging
