// Package logging provides the structured logging seam every other package
// in this module takes through its constructor rather than reaching for a
// global.
package logging

import "context"

// Logger is the minimal structured logging interface used throughout the
// reasoning core. Implementations must be safe for concurrent use.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentLogger is a Logger that can be scoped to a named component, so
// logs from the rate limiter, the orchestrator, and the RAG layer can be
// filtered independently in aggregation (e.g. `component == "orchestrator"`).
type ComponentLogger interface {
	Logger
	WithComponent(component string) Logger
}

// NoOp is a Logger that discards everything. Useful as a default in tests
// and in constructors that accept a nil logger.
type NoOp struct{}

func (NoOp) Info(string, map[string]interface{})                                  {}
func (NoOp) Warn(string, map[string]interface{})                                  {}
func (NoOp) Error(string, map[string]interface{})                                 {}
func (NoOp) Debug(string, map[string]interface{})                                 {}
func (NoOp) InfoWithContext(context.Context, string, map[string]interface{})      {}
func (NoOp) WarnWithContext(context.Context, string, map[string]interface{})      {}
func (NoOp) ErrorWithContext(context.Context, string, map[string]interface{})     {}
func (NoOp) DebugWithContext(context.Context, string, map[string]interface{})     {}
func (NoOp) WithComponent(string) Logger                                          { return NoOp{} }

var _ ComponentLogger = NoOp{}
