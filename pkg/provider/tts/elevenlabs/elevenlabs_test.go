package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/solace/pkg/provider/tts"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.CloseNow()
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Errorf("server read: %v", err)
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Errorf("server decode %q: %v", data, err)
	}
}

func writeJSON(conn *websocket.Conn, v any) {
	b, _ := json.Marshal(v)
	_ = conn.Write(context.Background(), websocket.MessageText, b)
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestBuildURL(t *testing.T) {
	p, _ := New("key", WithEndpoint("wss://example.test/v1/text-to-speech/"), WithModel("m1"), WithOutputFormat("pcm_24000"))
	got := p.buildURL("voice 1")
	want := "wss://example.test/v1/text-to-speech/voice%201/stream-input?model_id=m1&output_format=pcm_24000"
	if got != want {
		t.Errorf("buildURL = %q\nwant       %q", got, want)
	}
}

func TestBuildSettings(t *testing.T) {
	tests := []struct {
		name string
		in   tts.Settings
		want voiceSettings
	}{
		{"defaults", tts.Settings{}, voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}},
		{"slow clamps", tts.Settings{Speed: 0.5}, voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Speed: 0.7}},
		{"fast clamps", tts.Settings{Speed: 2}, voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Speed: 1.2}},
		{"passthrough", tts.Settings{Speed: 0.9, Stability: 0.3, SimilarityBoost: 0.8, Style: 0.4}, voiceSettings{Stability: 0.3, SimilarityBoost: 0.8, Style: 0.4, Speed: 0.9}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := *buildSettings(tc.in); got != tc.want {
				t.Errorf("buildSettings = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestSynthesize_StreamsAudio(t *testing.T) {
	type received struct {
		path string
		boi  boiMessage
		text textMessage
		eos  textMessage
	}
	got := make(chan received, 1)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		var rec received
		rec.path = r.URL.Path + "?" + r.URL.RawQuery
		readJSON(t, conn, &rec.boi)
		readJSON(t, conn, &rec.text)
		readJSON(t, conn, &rec.eos)
		got <- rec

		writeJSON(conn, map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte{1, 2}), "isFinal": nil})
		writeJSON(conn, map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte{3, 4, 5})})
		writeJSON(conn, map[string]any{"isFinal": true})
		_, _, _ = conn.Read(context.Background())
	})

	p, _ := New("secret", WithEndpoint(wsURL(srv)), WithVoice("calm"))
	var buf bytes.Buffer
	err := p.Synthesize(context.Background(), tts.Request{Text: "Take a slow breath.", Settings: tts.Settings{Speed: 0.9}}, &buf)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{1, 2, 3, 4, 5}) {
		t.Errorf("audio = %v", buf.Bytes())
	}

	rec := <-got
	if !strings.HasPrefix(rec.path, "/calm/stream-input?") {
		t.Errorf("path = %q", rec.path)
	}
	if rec.boi.XiAPIKey != "secret" || rec.boi.VoiceSettings == nil || rec.boi.VoiceSettings.Speed != 0.9 {
		t.Errorf("boi = %+v", rec.boi)
	}
	if rec.text.Text != "Take a slow breath. " || !rec.text.Flush {
		t.Errorf("text = %+v", rec.text)
	}
	if rec.eos.Text != "" {
		t.Errorf("eos = %+v, want empty text", rec.eos)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var m map[string]any
		readJSON(t, conn, &m)
		writeJSON(conn, map[string]any{"message": "quota exceeded", "error": "quota_exceeded"})
		_, _, _ = conn.Read(context.Background())
	})
	p, _ := New("secret", WithEndpoint(wsURL(srv)), WithVoice("calm"))
	err := p.Synthesize(context.Background(), tts.Request{Text: "hi"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("err = %v, want quota error", err)
	}
}

func TestSynthesize_NormalCloseEndsUtterance(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var m map[string]any
		readJSON(t, conn, &m)
		writeJSON(conn, map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte{9})})
		conn.Close(websocket.StatusNormalClosure, "")
	})
	p, _ := New("secret", WithEndpoint(wsURL(srv)), WithVoice("calm"))
	var buf bytes.Buffer
	if err := p.Synthesize(context.Background(), tts.Request{Text: "hi"}, &buf); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if buf.Len() != 1 {
		t.Errorf("audio len = %d, want 1", buf.Len())
	}
}

func TestSynthesize_ContextCancel(t *testing.T) {
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_, _, _ = conn.Read(context.Background())
		_, _, _ = conn.Read(context.Background())
		_, _, _ = conn.Read(context.Background())
		_, _, _ = conn.Read(context.Background())
	})
	p, _ := New("secret", WithEndpoint(wsURL(srv)), WithVoice("calm"))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := p.Synthesize(ctx, tts.Request{Text: "hi"}, &bytes.Buffer{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestSynthesize_Validation(t *testing.T) {
	p, _ := New("secret")
	if err := p.Synthesize(context.Background(), tts.Request{Text: "  "}, &bytes.Buffer{}); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("blank text err = %v", err)
	}
	if err := p.Synthesize(context.Background(), tts.Request{Text: "hi"}, &bytes.Buffer{}); err == nil {
		t.Error("expected error without a voice id")
	}
}
