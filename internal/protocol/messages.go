package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientAudioChunk MessageType = "client_audio_chunk"
	TypeClientText       MessageType = "client_text"
	TypeClientControl    MessageType = "client_control"
	TypeTranscriptDelta  MessageType = "transcript_delta"
	TypeTurnCommitted    MessageType = "turn_committed"
	TypeAssistantAudio   MessageType = "assistant_audio_chunk"
	TypePlaybackClear    MessageType = "playback_clear"
	TypeStatusUpdate     MessageType = "status_update"
	TypeErrorEvent       MessageType = "error_event"
)

// Control actions accepted on client_control messages. ActionMicDenied is how
// the browser reports a refused microphone permission prompt.
const (
	ActionStartVoice = "start_voice"
	ActionStopVoice  = "stop_voice"
	ActionMicDenied  = "mic_denied"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	TSMs        int64       `json:"ts_ms"`
}

// ClientText is the typed fallback while a voice session is open.
type ClientText struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

// TranscriptDelta carries an incremental transcript fragment. Role is "user"
// for the student's speech and "assistant" for the tutor's reply.
type TranscriptDelta struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Role      string      `json:"role"`
	TextDelta string      `json:"text_delta"`
}

// TurnCommitted finalizes both sides of an exchange for the conversation log.
type TurnCommitted struct {
	Type          MessageType `json:"type"`
	SessionID     string      `json:"session_id"`
	TurnID        string      `json:"turn_id"`
	UserText      string      `json:"user_text"`
	AssistantText string      `json:"assistant_text"`
	TSMs          int64       `json:"ts_ms"`
}

// AssistantAudioChunk carries base64 PCM16 output audio with the playback
// offset (ms from session start) the client should schedule it at.
type AssistantAudioChunk struct {
	Type         MessageType `json:"type"`
	SessionID    string      `json:"session_id"`
	TurnID       string      `json:"turn_id"`
	Seq          int         `json:"seq"`
	PCM16Base64  string      `json:"pcm16_base64"`
	SampleRate   int         `json:"sample_rate"`
	PlayAtOffset int64       `json:"play_at_offset_ms"`
}

// PlaybackClear tells the client to stop and drop all scheduled audio.
type PlaybackClear struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Reason    string      `json:"reason"`
}

// StatusUpdate reflects the tutoring session state machine to the client.
type StatusUpdate struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	State     string      `json:"state"`
	Label     string      `json:"label,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid client_audio_chunk")
		}
		return msg, nil
	case TypeClientText:
		var msg ClientText
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Text == "" {
			return nil, errors.New("invalid client_text")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid client_control")
		}
		switch msg.Action {
		case ActionStartVoice, ActionStopVoice, ActionMicDenied:
		default:
			return nil, fmt.Errorf("invalid client_control action %q", msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
