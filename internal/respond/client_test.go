package respond

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/internal/resilience"
	"github.com/MrWong99/solace/internal/voice"
)

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// requests returns the solace.respond.requests count for status.
func requests(t *testing.T, reader *sdkmetric.ManualReader, status string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "solace.respond.requests" {
				continue
			}
			for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key("status")); ok && v.AsString() == status {
					return dp.Value
				}
			}
		}
	}
	return 0
}

func therapyServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Respond(t *testing.T) {
	var got MessageRequest
	srv := therapyServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/therapy" {
			t.Errorf("request = %s %s, want POST /api/therapy", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_, _ = w.Write([]byte(`{
			"response": "That sounds exhausting.",
			"emotion": "tired",
			"therapy_mode": "motivational",
			"coping_suggestion": "Stay hydrated throughout the day",
			"voice_tone": {"pitch": -0.1, "speed": 3, "warmth": 0.95, "energy": 0.3}
		}`))
	})

	m, reader := newTestMetrics(t)
	c, err := NewClient(srv.URL+"/", WithMetrics(m))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	reply, err := c.Respond(context.Background(), "I'm so tired")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got.Message != "I'm so tired" {
		t.Errorf("message sent = %q", got.Message)
	}
	if reply.Text != "That sounds exhausting." || reply.Emotion != "tired" || reply.Mode != "motivational" {
		t.Errorf("reply = %+v", reply)
	}
	if reply.CopingSuggestion != "Stay hydrated throughout the day" {
		t.Errorf("CopingSuggestion = %q", reply.CopingSuggestion)
	}
	if reply.Style == nil {
		t.Fatal("Style = nil")
	}
	if reply.Style.Speed != 2 {
		t.Errorf("Speed = %v, want clamped 2", reply.Style.Speed)
	}
	if n := requests(t, reader, "ok"); n != 1 {
		t.Errorf("ok requests = %d, want 1", n)
	}
}

func TestClient_ReplyWithoutTone(t *testing.T) {
	srv := therapyServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response": "I'm here for you. Can you tell me more?", "error": "backend hiccup"}`))
	})
	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	reply, err := c.Respond(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if reply.Style != nil {
		t.Errorf("Style = %+v, want nil", reply.Style)
	}
}

func TestClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
		status  string
	}{
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"Message required"}`, http.StatusBadRequest)
			},
			check: func(t *testing.T, err error) {
				var se *StatusError
				if !errors.As(err, &se) || se.Code != http.StatusBadRequest {
					t.Errorf("err = %v, want *StatusError 400", err)
				}
			},
			status: "http_400",
		},
		{
			name: "missing response",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"emotion":"sad"}`))
			},
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrEmptyResponse) {
					t.Errorf("err = %v, want ErrEmptyResponse", err)
				}
			},
			status: "empty",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`<html>`))
			},
			check: func(t *testing.T, err error) {
				if err == nil {
					t.Error("expected error")
				}
			},
			status: "error",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := therapyServer(t, tc.handler)
			m, reader := newTestMetrics(t)
			c, err := NewClient(srv.URL, WithMetrics(m))
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			_, err = c.Respond(context.Background(), "hi")
			tc.check(t, err)
			if n := requests(t, reader, tc.status); n != 1 {
				t.Errorf("%s requests = %d, want 1", tc.status, n)
			}
		})
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := therapyServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	m, reader := newTestMetrics(t)
	c, err := NewClient(srv.URL, WithMetrics(m))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Respond(ctx, "hi"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if n := requests(t, reader, "timeout"); n != 1 {
		t.Errorf("timeout requests = %d, want 1", n)
	}
}

func TestClient_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := therapyServer(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	b := resilience.NewBreaker(resilience.Config{Name: "remote", MaxFailures: 2, ResetTimeout: time.Hour})
	c, err := NewClient(srv.URL, WithBreaker(b))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	for range 2 {
		_, _ = c.Respond(context.Background(), "hi")
	}
	if _, err := c.Respond(context.Background(), "hi"); !errors.Is(err, resilience.ErrOpen) {
		t.Fatalf("err = %v, want ErrOpen", err)
	}
	if n := hits.Load(); n != 2 {
		t.Errorf("server hits = %d, want 2", n)
	}
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "ftp://example.com", "://nope"} {
		if _, err := NewClient(u); err == nil {
			t.Errorf("NewClient(%q): expected error", u)
		}
	}
}

func TestTherapyResponse_Reply(t *testing.T) {
	tr := TherapyResponse{Response: "ok", VoiceTone: &voice.Style{Pitch: -5, Speed: 0.1, Warmth: 2, Energy: -1}}
	s := tr.Reply().Style
	if s == nil {
		t.Fatal("Style = nil")
	}
	want := voice.Style{Pitch: -1, Speed: 0.5, Warmth: 1, Energy: 0}
	if *s != want {
		t.Errorf("Style = %+v, want %+v", *s, want)
	}
}
