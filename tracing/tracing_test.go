package tracing

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// recordSpans installs an in-memory tracer provider for the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return rec
}

func attrMap(attrs []attribute.KeyValue) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value.Emit()
	}
	return m
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_ENVIRONMENT", "")
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "")

	cfg := DefaultConfig()

	if cfg.ServiceName != TracerName {
		t.Errorf("ServiceName = %q, want %q", cfg.ServiceName, TracerName)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %q", cfg.Environment)
	}
	if cfg.Enabled {
		t.Error("tracing should be off without OTEL_ENABLED or an endpoint")
	}
	if !cfg.Insecure {
		t.Error("Insecure should default to true")
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("SampleRate = %v, want 1.0", cfg.SampleRate)
	}
}

func TestDefaultConfig_FromEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "wikiclone-staging")
	t.Setenv("OTEL_ENVIRONMENT", "staging")
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "false")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg := DefaultConfig()

	if cfg.ServiceName != "wikiclone-staging" || cfg.Environment != "staging" {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.Enabled {
		t.Error("an OTLP endpoint should enable tracing")
	}
	if cfg.OTLPEndpoint != "collector:4318" {
		t.Errorf("OTLPEndpoint = %q", cfg.OTLPEndpoint)
	}
	if cfg.Insecure {
		t.Error("OTEL_EXPORTER_OTLP_INSECURE=false should disable insecure")
	}
	if cfg.SampleRate != 0.25 {
		t.Errorf("SampleRate = %v, want 0.25", cfg.SampleRate)
	}
}

func TestParseSampleRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 1.0},
		{"0", 0},
		{"0.1", 0.1},
		{"lots", 1.0},
	}
	for _, tt := range tests {
		if got := parseSampleRate(tt.in); got != tt.want {
			t.Errorf("parseSampleRate(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{1.5, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.5, "TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		if got := newSampler(tt.rate).Description(); got != tt.want {
			t.Errorf("newSampler(%v) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}

func TestSetup_Disabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown returned error: %v", err)
	}
}

func TestSetup_ConsoleExporter(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := Setup(context.Background(), Config{
		ServiceName:    "wikiclone-test",
		ServiceVersion: "0.0.0",
		Environment:    "test",
		Enabled:        true,
		SampleRate:     1.0,
		Writer:         io.Discard,
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	_, span := StartSpan(context.Background(), "encyclopedia.fetch")
	if !span.SpanContext().IsSampled() {
		t.Error("span should be sampled at rate 1.0")
	}
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown returned error: %v", err)
	}
}

func TestNewResource(t *testing.T) {
	res, err := newResource(Config{
		ServiceName:    "wikiclone-test",
		ServiceVersion: "2.1.0",
		Environment:    "staging",
	})
	if err != nil {
		t.Fatalf("newResource failed: %v", err)
	}

	if res.SchemaURL() != resource.Default().SchemaURL() {
		t.Errorf("schema = %q, want the SDK default %q", res.SchemaURL(), resource.Default().SchemaURL())
	}
	attrs := attrMap(res.Attributes())
	want := map[string]string{
		"service.name":           "wikiclone-test",
		"service.version":        "2.1.0",
		"deployment.environment": "staging",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("%s = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestEnd(t *testing.T) {
	rec := recordSpans(t)

	_, ok := StartSpan(context.Background(), "ok")
	End(ok, nil)
	_, failed := StartSpan(context.Background(), "failed")
	End(failed, errors.New("upstream returned 502"))

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended %d spans, want 2", len(spans))
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("ok span status = %v", spans[0].Status())
	}
	if spans[1].Status().Code != codes.Error || spans[1].Status().Description != "upstream returned 502" {
		t.Errorf("failed span status = %v", spans[1].Status())
	}
	if len(spans[1].Events()) == 0 {
		t.Error("failed span should carry an exception event")
	}
}

func TestStartHTTPSpan(t *testing.T) {
	rec := recordSpans(t)

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x4b, 0xf9, 0x2f, 0x35},
		SpanID:     trace.SpanID{0x00, 0xf0, 0x67, 0xaa},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})

	r := httptest.NewRequest("GET", "/search/Python/", nil)
	propagation.TraceContext{}.Inject(
		trace.ContextWithRemoteSpanContext(context.Background(), parent),
		propagation.HeaderCarrier(r.Header))

	ctx, span := StartHTTPSpan(r, "article")
	span.End()

	if got := trace.SpanContextFromContext(ctx).TraceID(); got != parent.TraceID() {
		t.Errorf("trace id = %s, want %s", got, parent.TraceID())
	}

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended %d spans, want 1", len(spans))
	}
	s := spans[0]
	if s.Name() != "http article" || s.SpanKind() != trace.SpanKindServer {
		t.Errorf("span = %s (%v)", s.Name(), s.SpanKind())
	}
	attrs := attrMap(s.Attributes())
	if attrs["http.route"] != "article" || attrs["url.path"] != "/search/Python/" || attrs["http.request.method"] != "GET" {
		t.Errorf("attributes = %v", attrs)
	}
}

func TestSpanAttributes(t *testing.T) {
	rec := recordSpans(t)

	_, tool := StartSpan(context.Background(), "mcp.tool.wiki_get_article")
	AddToolAttributes(tool, "wiki_get_article", "read")
	tool.End()

	_, api := StartSpan(context.Background(), "wiki.api.parse")
	AddAPIAttributes(api, "parse", "Python")
	api.End()

	_, random := StartSpan(context.Background(), "wiki.api.query")
	AddAPIAttributes(random, "query", "")
	random.End()

	spans := rec.Ended()
	if len(spans) != 3 {
		t.Fatalf("ended %d spans, want 3", len(spans))
	}

	toolAttrs := attrMap(spans[0].Attributes())
	if toolAttrs["mcp.tool.name"] != "wiki_get_article" || toolAttrs["mcp.tool.category"] != "read" {
		t.Errorf("tool attributes = %v", toolAttrs)
	}
	apiAttrs := attrMap(spans[1].Attributes())
	if apiAttrs["wiki.api.action"] != "parse" || apiAttrs["wiki.page.title"] != "Python" {
		t.Errorf("api attributes = %v", apiAttrs)
	}
	if _, ok := attrMap(spans[2].Attributes())["wiki.page.title"]; ok {
		t.Error("empty title should not be recorded")
	}
}
