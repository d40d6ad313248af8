package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPClientGenerateContent(t *testing.T) {
	var gotPath string
	var gotBody generateBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"english\":\"hi\"}"}]}}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key")
	out, err := c.GenerateContent(context.Background(), GenerateRequest{
		Model:             "gemini-3-flash-preview",
		SystemInstruction: "be brief",
		Parts:             []Part{{Text: "hello"}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    map[string]any{"type": "OBJECT"},
	})
	if err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}
	if out != `{"english":"hi"}` {
		t.Fatalf("unexpected text %q", out)
	}
	if gotPath != "/v1beta/models/gemini-3-flash-preview:generateContent" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotBody.SystemInstruction == nil || gotBody.SystemInstruction.Parts[0].Text != "be brief" {
		t.Fatalf("system instruction not forwarded: %+v", gotBody.SystemInstruction)
	}
	if gotBody.GenerationConfig == nil || gotBody.GenerationConfig.ResponseMIMEType != "application/json" {
		t.Fatalf("generation config not forwarded: %+v", gotBody.GenerationConfig)
	}
}

func TestHTTPClientGenerateContentErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key")
	_, err := c.GenerateContent(context.Background(), GenerateRequest{Model: "m", Parts: []Part{{Text: "x"}}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusTooManyRequests || apiErr.Body != "quota exceeded" {
		t.Fatalf("unexpected APIError %+v", apiErr)
	}
}

func TestHTTPClientGenerateContentEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key")
	_, err := c.GenerateContent(context.Background(), GenerateRequest{Model: "m", Parts: []Part{{Text: "x"}}})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestHTTPClientStreamMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "alt=sse") {
			t.Errorf("expected alt=sse in query, got %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hel\"}]}}]}\n\n"))
		_, _ = w.Write([]byte(": keepalive\n\n"))
		_, _ = w.Write([]byte("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"lo\"}]}}]}\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key")
	var deltas []string
	full, err := c.StreamMessage(context.Background(), ChatRequest{
		Model:   "m",
		Message: "hi",
		History: []ChatTurn{{Role: "user", Text: "earlier"}, {Role: "model", Text: "reply"}},
	}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamMessage: %v", err)
	}
	if full != "Hello" {
		t.Fatalf("unexpected full reply %q", full)
	}
	if len(deltas) != 2 || deltas[0] != "Hel" || deltas[1] != "lo" {
		t.Fatalf("unexpected deltas %v", deltas)
	}
}

func TestMockClientHonorsSchema(t *testing.T) {
	c := NewMockClient()
	out, err := c.GenerateContent(context.Background(), GenerateRequest{
		Model: "m",
		Parts: []Part{{Text: "x"}},
		ResponseSchema: map[string]any{
			"type": "OBJECT",
			"properties": map[string]any{
				"steps":       map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}},
				"finalAnswer": map[string]any{"type": "STRING"},
			},
		},
	})
	if err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}
	var parsed struct {
		Steps       []string `json:"steps"`
		FinalAnswer string   `json:"finalAnswer"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("mock output is not valid JSON: %v", err)
	}
	if len(parsed.Steps) == 0 || parsed.FinalAnswer == "" {
		t.Fatalf("mock output missing schema fields: %s", out)
	}
}

func TestMockLiveSessionEmitsExchange(t *testing.T) {
	p := NewMockLiveProvider()
	sess, events, err := p.StartSession(context.Background(), "m", "instruction")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	defer sess.Close()

	chunk := strings.Repeat("A", 16)
	for i := 0; i < 6; i++ {
		if err := sess.SendAudioChunk(context.Background(), chunk, 16000); err != nil {
			t.Fatalf("SendAudioChunk: %v", err)
		}
	}

	var types []LiveEventType
	for i := 0; i < 5; i++ {
		ev := <-events
		types = append(types, ev.Type)
	}
	want := []LiveEventType{LiveEventReady, LiveEventInputTranscript, LiveEventOutputTranscript, LiveEventAudio, LiveEventTurnComplete}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d: got %s want %s", i, types[i], want[i])
		}
	}
}

func TestSampleRateFromMIME(t *testing.T) {
	if got := sampleRateFromMIME("audio/pcm;rate=24000"); got != 24000 {
		t.Fatalf("got %d", got)
	}
	if got := sampleRateFromMIME("audio/pcm; rate=16000"); got != 16000 {
		t.Fatalf("got %d", got)
	}
	if got := sampleRateFromMIME("audio/pcm"); got != 24000 {
		t.Fatalf("fallback: got %d", got)
	}
}

func TestNewClientModeSelection(t *testing.T) {
	if _, err := NewClient(Config{Mode: "http"}); err == nil {
		t.Fatal("http mode without key should error")
	}
	c, err := NewClient(Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("auto mode: %v", err)
	}
	if _, ok := c.(*MockClient); !ok {
		t.Fatalf("auto without key should pick mock, got %T", c)
	}
	c, err = NewClient(Config{Mode: "auto", APIKey: "k"})
	if err != nil {
		t.Fatalf("auto mode with key: %v", err)
	}
	if _, ok := c.(*HTTPClient); !ok {
		t.Fatalf("auto with key should pick http, got %T", c)
	}
	if _, err := NewClient(Config{Mode: "bogus"}); err == nil {
		t.Fatal("unknown mode should error")
	}
}
