package observe

import (
	"bytes"
	"context"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

var traceIDPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// useTracer installs an in-memory tracer provider globally for the test.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureDefault routes slog.Default into a buffer for the test.
func captureDefault(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestCorrelationID(t *testing.T) {
	useTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without span = %q, want empty", got)
	}

	seen := make(map[string]bool)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "turn")
		cid := CorrelationID(ctx)
		span.End()
		if !traceIDPattern.MatchString(cid) {
			t.Fatalf("CorrelationID = %q, want 32 hex chars", cid)
		}
		if seen[cid] {
			t.Fatalf("duplicate correlation ID %s", cid)
		}
		seen[cid] = true
	}
}

func TestStartSpan_RecordsOnGlobalProvider(t *testing.T) {
	exp := useTracer(t)

	_, span := StartSpan(context.Background(), "respond")
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "respond" {
		t.Fatalf("spans = %v, want one named respond", spans)
	}
	if got := spans[0].InstrumentationScope.Name; got != tracerName {
		t.Errorf("scope = %q, want %q", got, tracerName)
	}
}

func TestLogger(t *testing.T) {
	useTracer(t)

	tests := []struct {
		name      string
		withSpan  bool
		wantTrace bool
	}{
		{"inside span", true, true},
		{"no span", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureDefault(t)
			ctx := context.Background()
			if tt.withSpan {
				c, s := StartSpan(ctx, "log")
				defer s.End()
				ctx = c
			}
			Logger(ctx).Info("hello")

			out := buf.String()
			if got := strings.Contains(out, "trace_id="); got != tt.wantTrace {
				t.Errorf("trace_id present = %v, want %v: %s", got, tt.wantTrace, out)
			}
			if got := strings.Contains(out, "span_id="); got != tt.wantTrace {
				t.Errorf("span_id present = %v, want %v: %s", got, tt.wantTrace, out)
			}
		})
	}
}

func TestLoggerFrom_KeepsBaseAttributes(t *testing.T) {
	useTracer(t)

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil)).With("session", "abc")

	ctx, span := StartSpan(context.Background(), "session")
	defer span.End()

	LoggerFrom(ctx, base).Info("hello")
	out := buf.String()
	for _, want := range []string{"session=abc", "trace_id=" + CorrelationID(ctx), "span_id="} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q, got: %s", want, out)
		}
	}

	buf.Reset()
	if got := LoggerFrom(context.Background(), base); got != base {
		t.Error("LoggerFrom without span should return base unchanged")
	}
}
