package logger

// Logger exposes logging methods for common severity levels. Each part of the
// scheduler holds its own component-tagged instance, so run output can be
// filtered by pipeline, solver, or exporter.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// StructuredLogger can log structured debug information, such as per-iteration
// utilization fields. It is implemented by ZerologLogger and other adapters.
type StructuredLogger interface {
	Debugw(msg string, fields map[string]any)
}
