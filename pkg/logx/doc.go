// Package logx provides nutripush's structured logging.
//
// It wraps zerolog behind a small Logger value with slog-like Field
// ergonomics. A Service owns the configured sinks (console and/or JSON
// file) and supports hot reconfiguration via Apply(); Loggers handed out
// by the Service keep writing to whatever sinks are currently applied.
package logx
