package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/studybuddyhq/studybuddy/internal/reliability"
)

const defaultLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// LiveEventType identifies events arriving from a realtime session.
type LiveEventType string

const (
	LiveEventReady            LiveEventType = "ready"
	LiveEventInputTranscript  LiveEventType = "input_transcript"
	LiveEventOutputTranscript LiveEventType = "output_transcript"
	LiveEventAudio            LiveEventType = "audio"
	LiveEventTurnComplete     LiveEventType = "turn_complete"
	LiveEventInterrupted      LiveEventType = "interrupted"
	LiveEventError            LiveEventType = "error"
)

// LiveEvent is one upstream notification. Text carries transcript deltas,
// AudioBase64 carries base64 PCM16 at SampleRate.
type LiveEvent struct {
	Type        LiveEventType
	Text        string
	AudioBase64 string
	SampleRate  int
	Code        string
	Detail      string
	Retryable   bool
	Timestamp   int64
}

// LiveSession is an open bidirectional audio conversation.
type LiveSession interface {
	SendAudioChunk(ctx context.Context, audioBase64 string, sampleRate int) error
	SendText(ctx context.Context, text string) error
	Close() error
}

// LiveProvider opens realtime sessions against the hosted model.
type LiveProvider interface {
	StartSession(ctx context.Context, model, systemInstruction string) (LiveSession, <-chan LiveEvent, error)
}

// LiveWSProvider dials the bidirectional generation websocket endpoint.
type LiveWSProvider struct {
	liveURL string
	apiKey  string
}

func NewLiveWSProvider(liveURL, apiKey string) *LiveWSProvider {
	if strings.TrimSpace(liveURL) == "" {
		liveURL = defaultLiveURL
	}
	return &LiveWSProvider{liveURL: liveURL, apiKey: apiKey}
}

func (p *LiveWSProvider) StartSession(ctx context.Context, model, systemInstruction string) (LiveSession, <-chan LiveEvent, error) {
	u, err := url.Parse(p.liveURL)
	if err != nil {
		return nil, nil, err
	}
	q := u.Query()
	q.Set("key", p.apiKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial live websocket: %w", err)
	}

	events := make(chan LiveEvent, 256)
	s := &liveWSSession{conn: conn, events: events, done: make(chan struct{})}

	setup := map[string]any{
		"setup": map[string]any{
			"model": "models/" + model,
			"generationConfig": map[string]any{
				"responseModalities": []string{"AUDIO"},
			},
			"inputAudioTranscription":  map[string]any{},
			"outputAudioTranscription": map[string]any{},
		},
	}
	if systemInstruction != "" {
		setup["setup"].(map[string]any)["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": systemInstruction}},
		}
	}
	if err := s.writeJSON(setup); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("send live setup: %w", err)
	}

	go s.readLoop()
	return s, events, nil
}

type liveWSSession struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan LiveEvent
	done      chan struct{}
}

func (s *liveWSSession) SendAudioChunk(_ context.Context, audioBase64 string, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return s.writeJSON(map[string]any{
		"realtimeInput": map[string]any{
			"audio": map[string]any{
				"data":     audioBase64,
				"mimeType": "audio/pcm;rate=" + strconv.Itoa(sampleRate),
			},
		},
	})
}

func (s *liveWSSession) SendText(_ context.Context, text string) error {
	return s.writeJSON(map[string]any{
		"clientContent": map[string]any{
			"turns": []map[string]any{{
				"role":  "user",
				"parts": []map[string]any{{"text": text}},
			}},
			"turnComplete": true,
		},
	})
}

// readLoop is the only goroutine that sends on or closes s.events.
func (s *liveWSSession) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		s.dispatch(raw)
	}
}

func (s *liveWSSession) dispatch(raw map[string]any) {
	now := time.Now().UnixMilli()

	if _, ok := raw["setupComplete"]; ok {
		s.emit(LiveEvent{Type: LiveEventReady, Timestamp: now})
		return
	}
	if errBody, ok := raw["error"].(map[string]any); ok {
		code := liveString(errBody["status"])
		s.emit(LiveEvent{
			Type:      LiveEventError,
			Code:      code,
			Detail:    liveString(errBody["message"]),
			Retryable: reliability.IsRetryableLiveCode(code),
			Timestamp: now,
		})
		return
	}

	content, ok := raw["serverContent"].(map[string]any)
	if !ok {
		return
	}
	if liveBool(content["interrupted"]) {
		s.emit(LiveEvent{Type: LiveEventInterrupted, Timestamp: now})
		return
	}
	if tr, ok := content["inputTranscription"].(map[string]any); ok {
		if text := liveString(tr["text"]); text != "" {
			s.emit(LiveEvent{Type: LiveEventInputTranscript, Text: text, Timestamp: now})
		}
	}
	if tr, ok := content["outputTranscription"].(map[string]any); ok {
		if text := liveString(tr["text"]); text != "" {
			s.emit(LiveEvent{Type: LiveEventOutputTranscript, Text: text, Timestamp: now})
		}
	}
	if turn, ok := content["modelTurn"].(map[string]any); ok {
		if parts, ok := turn["parts"].([]any); ok {
			for _, p := range parts {
				part, ok := p.(map[string]any)
				if !ok {
					continue
				}
				blob, ok := part["inlineData"].(map[string]any)
				if !ok {
					continue
				}
				if data := liveString(blob["data"]); data != "" {
					s.emit(LiveEvent{
						Type:        LiveEventAudio,
						AudioBase64: data,
						SampleRate:  sampleRateFromMIME(liveString(blob["mimeType"])),
						Timestamp:   now,
					})
				}
			}
		}
	}
	if liveBool(content["turnComplete"]) {
		s.emit(LiveEvent{Type: LiveEventTurnComplete, Timestamp: now})
	}
}

// emit delivers an event unless the session is closing. Blocking sends are
// abandoned when done closes, so Close never races a send on a closed channel.
func (s *liveWSSession) emit(evt LiveEvent) {
	select {
	case s.events <- evt:
	case <-s.done:
	}
}

func (s *liveWSSession) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		close(s.done)
		retErr = s.conn.Close()
	})
	return retErr
}

func (s *liveWSSession) writeJSON(payload map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

// sampleRateFromMIME parses "audio/pcm;rate=24000". The live endpoint always
// emits 24kHz output; that is the fallback when the rate is absent.
func sampleRateFromMIME(mime string) int {
	for _, param := range strings.Split(mime, ";") {
		param = strings.TrimSpace(param)
		if v, ok := strings.CutPrefix(param, "rate="); ok {
			if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
				return rate
			}
		}
	}
	return 24000
}

func liveString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func liveBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
