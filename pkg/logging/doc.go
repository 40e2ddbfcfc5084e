// Package logging provides structured logging for tregate.
//
// All components log through subsystem-tagged helpers (Debug, Info, Warn,
// Error) backed by log/slog. The subsystem string identifies the component
// emitting the entry ("Resolve", "TokenValidator", "Authz", ...), which keeps
// grepping a mixed request log practical.
package logging
