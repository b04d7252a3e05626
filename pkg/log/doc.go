// Package log provides structured logging for hps-cli using zerolog.
//
// Init configures the global logger's level and format (JSON for
// machine consumption, console for an interactive terminal session).
// WithComponent, WithSessionID, WithServerAddr, and WithAction return
// child loggers scoped to a package or a request flow; package-level
// Info/Debug/Warn/Error/Fatal write through the unscoped global logger
// for one-off messages that don't need that context.
package log
