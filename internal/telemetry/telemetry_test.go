package telemetry

import (
	"context"
	"errors"
	"testing"
)

func TestStartQueryAndStream_ProduceValidSpanContext(t *testing.T) {
	p := NewProvider()
	defer p.Shutdown(context.Background())

	ctx, querySpan := StartQuery(context.Background(), "/repo")
	if !querySpan.SpanContext().IsValid() {
		t.Fatal("expected a valid span context from StartQuery")
	}

	_, streamSpan := StartStream(ctx, "sess-1")
	if !streamSpan.SpanContext().IsValid() {
		t.Fatal("expected a valid span context from StartStream")
	}
	if streamSpan.SpanContext().TraceID() != querySpan.SpanContext().TraceID() {
		t.Fatal("expected the stream span to share its parent query span's trace ID")
	}
	streamSpan.End()

	RecordResult(querySpan, 0.05, 3, nil)
}

func TestRecordResult_RecordsError(t *testing.T) {
	p := NewProvider()
	defer p.Shutdown(context.Background())

	_, span := StartQuery(context.Background(), "/repo")
	RecordResult(span, 0, 0, errors.New("boom"))
}
