// Package progress outputs human-readable transfer progress.
//
// The reporter keeps per-run counters (completed, skipped, failed,
// in-flight, bytes) updated atomically by transfer workers and renders
// a single live status line, plus round banners and ad-hoc log lines
// that do not corrupt the live display.
package progress
