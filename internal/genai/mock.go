package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// MockClient is a local fallback used when no API key is configured. It
// fabricates responses that satisfy the requested JSON schema so the task
// pipeline stays exercisable offline.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) GenerateContent(_ context.Context, req GenerateRequest) (string, error) {
	if req.ResponseSchema == nil {
		return "এটি একটি নমুনা উত্তর। This is a sample answer.", nil
	}
	out := fabricateFromSchema(req.ResponseSchema)
	raw, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (c *MockClient) StreamMessage(_ context.Context, req ChatRequest, onDelta DeltaHandler) (string, error) {
	deltas := []string{"আমি বুঝেছি। ", "Let me help you with: ", strings.TrimSpace(req.Message)}
	var full strings.Builder
	for _, d := range deltas {
		if d == "" {
			continue
		}
		full.WriteString(d)
		if onDelta != nil {
			if err := onDelta(d); err != nil {
				return full.String(), err
			}
		}
	}
	return full.String(), nil
}

// fabricateFromSchema builds a placeholder value for a response schema so
// strict downstream parsing succeeds.
func fabricateFromSchema(schema map[string]any) any {
	switch strings.ToUpper(liveString(schema["type"])) {
	case "OBJECT":
		props, _ := schema["properties"].(map[string]any)
		out := make(map[string]any, len(props))
		for name, sub := range props {
			subSchema, _ := sub.(map[string]any)
			out[name] = fabricateFromSchema(subSchema)
		}
		return out
	case "ARRAY":
		item, _ := schema["items"].(map[string]any)
		return []any{fabricateFromSchema(item)}
	case "NUMBER", "INTEGER":
		return 1
	case "BOOLEAN":
		return true
	default:
		return "নমুনা sample"
	}
}

// MockLiveProvider simulates the realtime endpoint. Every few audio chunks it
// produces one full exchange: transcripts, a short audio reply, turn complete.
type MockLiveProvider struct{}

func NewMockLiveProvider() *MockLiveProvider { return &MockLiveProvider{} }

func (p *MockLiveProvider) StartSession(_ context.Context, _ string, _ string) (LiveSession, <-chan LiveEvent, error) {
	events := make(chan LiveEvent, 64)
	events <- LiveEvent{Type: LiveEventReady, Timestamp: time.Now().UnixMilli()}
	return &mockLiveSession{events: events}, events, nil
}

type mockLiveSession struct {
	mu     sync.Mutex
	events chan LiveEvent
	chunks int
	closed bool
}

func (s *mockLiveSession) SendAudioChunk(_ context.Context, audioBase64 string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || strings.TrimSpace(audioBase64) == "" {
		return nil
	}
	s.chunks++
	if s.chunks%6 == 0 {
		s.emitExchange("simulated student speech")
	}
	return nil
}

func (s *mockLiveSession) SendText(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.emitExchange(strings.TrimSpace(text))
	return nil
}

// emitExchange is called with s.mu held.
func (s *mockLiveSession) emitExchange(input string) {
	now := time.Now().UnixMilli()
	if input != "" {
		s.events <- LiveEvent{Type: LiveEventInputTranscript, Text: input, Timestamp: now}
	}
	s.events <- LiveEvent{Type: LiveEventOutputTranscript, Text: "Good try! চমৎকার চেষ্টা!", Timestamp: now}
	silence := base64.StdEncoding.EncodeToString(make([]byte, 2400))
	s.events <- LiveEvent{Type: LiveEventAudio, AudioBase64: silence, SampleRate: 24000, Timestamp: now}
	s.events <- LiveEvent{Type: LiveEventTurnComplete, Timestamp: now}
}

func (s *mockLiveSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}
