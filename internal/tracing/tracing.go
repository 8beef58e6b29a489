// Package tracing provides OpenTelemetry spans and attributes for JMAP
// client operations.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jarrod-lowe/jmap-client-core"

// AccountID returns the account_id attribute
func AccountID(id string) attribute.KeyValue {
	return attribute.String("account_id", id)
}

// RequestID returns the request_id attribute
func RequestID(id string) attribute.KeyValue {
	return attribute.String("request_id", id)
}

// JMAPMethod returns the jmap.method attribute
func JMAPMethod(method string) attribute.KeyValue {
	return attribute.String("jmap.method", method)
}

// JMAPClientID returns the jmap.client_id attribute (the call id)
func JMAPClientID(id string) attribute.KeyValue {
	return attribute.String("jmap.client_id", id)
}

// JMAPCallIndex returns the jmap.call_index attribute
func JMAPCallIndex(index int) attribute.KeyValue {
	return attribute.Int("jmap.call_index", index)
}

// JMAPCallCount returns the jmap.call_count attribute
func JMAPCallCount(n int) attribute.KeyValue {
	return attribute.Int("jmap.call_count", n)
}

// JMAPEntity returns the jmap.entity attribute
func JMAPEntity(entity string) attribute.KeyValue {
	return attribute.String("jmap.entity", entity)
}

// JMAPState returns the jmap.state attribute
func JMAPState(state string) attribute.KeyValue {
	return attribute.String("jmap.state", state)
}

// JMAPErrorType returns the jmap.error_type attribute
func JMAPErrorType(errorType string) attribute.KeyValue {
	return attribute.String("jmap.error_type", errorType)
}

// StartBatchSpan starts a span covering one request/response exchange
func StartBatchSpan(ctx context.Context, callCount int, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{JMAPCallCount(callCount)}, attrs...)
	return otel.Tracer(tracerName).Start(ctx, "JMAP Batch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// StartMethodSpan starts a span for one call of a batch
func StartMethodSpan(ctx context.Context, method, clientID string, index int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "JMAP Method",
		trace.WithAttributes(
			JMAPMethod(method),
			JMAPClientID(clientID),
			JMAPCallIndex(index),
		),
	)
}

// StartSyncSpan starts a span for an incremental sync of one entity type
func StartSyncSpan(ctx context.Context, entity, accountID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{JMAPEntity(entity), AccountID(accountID)}, attrs...)
	return otel.Tracer(tracerName).Start(ctx, "JMAP Sync", trace.WithAttributes(attrs...))
}

// RecordError records err on the span and marks it failed
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
