// Package logging wraps log/slog with the console and JSON handlers used
// across the daemon, plus helpers for component loggers and context-derived
// fields so pipeline and scheduler logs stay correlated per job.
package logging
