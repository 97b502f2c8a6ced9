// Package ctxutil carries correlation identifiers through the ingestion and
// solve pipelines so logs and audit records can be tied to one run.
package ctxutil

import "context"

// TraceData correlates logs and audit records to one scan or solve run.
type TraceData struct {
	RunID     string
	RequestID string
}

type traceKey struct{}

// WithTraceData attaches TraceData to ctx.
func WithTraceData(ctx context.Context, td TraceData) context.Context {
	return context.WithValue(ctx, traceKey{}, td)
}

// GetTraceData retrieves TraceData previously attached to ctx, if any.
func GetTraceData(ctx context.Context) (TraceData, bool) {
	td, ok := ctx.Value(traceKey{}).(TraceData)
	return td, ok
}
