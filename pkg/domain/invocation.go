package domain

import "time"

// Promise is a result slot a caller can await (RPC fabric "await" mode) or
// poll. It is completed exactly once; completing an already-completed
// promise is a no-op at the storage layer so retried completions from a
// replayed oplog segment stay idempotent.
type Promise struct {
	ID          string
	WorkerId    WorkerId
	CreatedAt   time.Time
	CompletedAt *time.Time
	Result      []byte
	Err         string
}

// Completed reports whether the promise has a result or error recorded.
func (p Promise) Completed() bool {
	return p.CompletedAt != nil
}

// Span is one node of an InvocationContext's trace tree, propagated as
// W3C traceparent/tracestate across both the Gateway's HTTP leg and the
// RPC fabric's gRPC leg (see pkg/tracing).
type Span struct {
	TraceID    string
	SpanID     string
	ParentSpan string
	Name       string
	StartedAt  time.Time
	Attributes map[string]string
}

// InvocationContext is the metadata propagated alongside an invocation:
// the trace span chain, the idempotency key, and the caller's identity.
type InvocationContext struct {
	Spans          []Span
	IdempotencyKey string
	CallerWorkerId *WorkerId
	Args           map[string]string
}

// CurrentSpan returns the most recently pushed span, or the zero Span if
// none has been recorded yet.
func (c InvocationContext) CurrentSpan() Span {
	if len(c.Spans) == 0 {
		return Span{}
	}
	return c.Spans[len(c.Spans)-1]
}

// WithSpan returns a copy of the context with a new child span pushed onto
// the chain, parented to the current span.
func (c InvocationContext) WithSpan(name string, traceID, spanID string) InvocationContext {
	parent := c.CurrentSpan().SpanID
	next := append(append([]Span{}, c.Spans...), Span{
		TraceID:    traceID,
		SpanID:     spanID,
		ParentSpan: parent,
		Name:       name,
		StartedAt:  time.Now(),
	})
	cp := c
	cp.Spans = next
	return cp
}

// InvocationMode selects how the RPC fabric dispatches a call.
type InvocationMode string

const (
	InvokeFireAndForget InvocationMode = "fire-and-forget"
	InvokeAwait         InvocationMode = "await"
	InvokeScheduled     InvocationMode = "scheduled"
	InvokeCancelable    InvocationMode = "cancelable"
)
