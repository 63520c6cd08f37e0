package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewContext(t *testing.T) {
	tc := New()

	if len(tc.TraceID) != 32 {
		t.Errorf("TraceID length = %d, want 32", len(tc.TraceID))
	}
	if len(tc.SpanID) != 16 {
		t.Errorf("SpanID length = %d, want 16", len(tc.SpanID))
	}
	if tc.ParentSpanID != "" {
		t.Error("new context should have no parent")
	}
}

func TestNewChild(t *testing.T) {
	parent := New()
	child := NewChild(parent)

	if child.TraceID != parent.TraceID {
		t.Error("child should share parent trace ID")
	}
	if child.SpanID == parent.SpanID {
		t.Error("child should get a fresh span ID")
	}
	if child.ParentSpanID != parent.SpanID {
		t.Error("child parent span should be parent's span")
	}
}

func TestContextRoundTrip(t *testing.T) {
	tc := New()
	ctx := WithContext(context.Background(), tc)

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("FromContext should find injected context")
	}
	if got.TraceID != tc.TraceID {
		t.Errorf("TraceID = %q, want %q", got.TraceID, tc.TraceID)
	}
}

func TestEnsureContext(t *testing.T) {
	ctx, tc := EnsureContext(context.Background())
	if tc.TraceID == "" {
		t.Error("EnsureContext should create a trace")
	}

	ctx2, tc2 := EnsureContext(ctx)
	if tc2.TraceID != tc.TraceID {
		t.Error("EnsureContext should reuse existing trace")
	}
	if ctx2 != ctx {
		t.Error("EnsureContext should return same ctx when present")
	}
}

func TestSpanLifecycle(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "round")
	span.SetAttr("round", 3)

	if span.Duration() != 0 {
		t.Error("unfinished span should report zero duration")
	}

	time.Sleep(time.Millisecond)
	span.End()

	if span.Duration() <= 0 {
		t.Error("finished span should have positive duration")
	}
	if span.Attrs["round"] != 3 {
		t.Errorf("Attrs[round] = %v, want 3", span.Attrs["round"])
	}

	// Child spans inherit trace ID through ctx.
	_, child := StartSpan(ctx, "ocr_read")
	if child.Ctx.TraceID != span.Ctx.TraceID {
		t.Error("child span should inherit trace ID")
	}
	if child.Ctx.ParentSpanID != span.Ctx.SpanID {
		t.Error("child span should reference parent span")
	}
}

func TestMiddleware(t *testing.T) {
	var got Context
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/snapshot", nil)
	req.Header.Set(TraceIDHeader, "deadbeefdeadbeefdeadbeefdeadbeef")
	req.Header.Set(SpanIDHeader, "cafebabecafebabe")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.TraceID != "deadbeefdeadbeefdeadbeefdeadbeef" {
		t.Errorf("TraceID = %q, want propagated header", got.TraceID)
	}
	if got.ParentSpanID != "cafebabecafebabe" {
		t.Errorf("ParentSpanID = %q, want caller span", got.ParentSpanID)
	}
}
