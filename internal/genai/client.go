package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Part is one piece of request content: text or inline (base64) image data.
type Part struct {
	Text       string
	InlineData *Blob
}

// Blob carries base64-encoded binary content with its MIME type.
type Blob struct {
	MIMEType string
	Data     string
}

// GenerateRequest asks the hosted model for a single completion, optionally
// constrained to a JSON schema.
type GenerateRequest struct {
	Model             string
	SystemInstruction string
	Parts             []Part
	ResponseMIMEType  string
	ResponseSchema    map[string]any
}

// ChatTurn is one prior turn of a conversational exchange.
type ChatTurn struct {
	Role string // "user" or "model"
	Text string
}

// ChatRequest asks for a streamed conversational reply.
type ChatRequest struct {
	Model             string
	SystemInstruction string
	History           []ChatTurn
	Message           string
}

// DeltaHandler receives streaming text fragments.
type DeltaHandler func(delta string) error

// Client is the request/response boundary to the hosted generative model. The
// realtime audio session has its own interface (LiveProvider).
type Client interface {
	GenerateContent(ctx context.Context, req GenerateRequest) (string, error)
	StreamMessage(ctx context.Context, req ChatRequest, onDelta DeltaHandler) (string, error)
}

// APIError captures a non-2xx response so callers can classify it.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("genai http status %d: %s", e.Status, e.Body)
}

var ErrEmptyResponse = errors.New("genai returned an empty response")

// Config controls client construction.
type Config struct {
	Mode    string
	APIKey  string
	BaseURL string
	LiveURL string
}

// NewClient builds a text client for the configured mode. Auto prefers the
// HTTP endpoint when an API key is present and falls back to the mock.
func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewHTTPClient(cfg.BaseURL, cfg.APIKey), nil
		}
		return NewMockClient(), nil
	case "http":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("GENAI_API_KEY is required for http mode")
		}
		return NewHTTPClient(cfg.BaseURL, cfg.APIKey), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported genai mode %q", cfg.Mode)
	}
}

// NewLiveProvider builds the realtime session provider for the configured mode.
func NewLiveProvider(cfg Config) (LiveProvider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", "auto":
		if strings.TrimSpace(cfg.APIKey) != "" {
			return NewLiveWSProvider(cfg.LiveURL, cfg.APIKey), nil
		}
		return NewMockLiveProvider(), nil
	case "http":
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, errors.New("GENAI_API_KEY is required for http mode")
		}
		return NewLiveWSProvider(cfg.LiveURL, cfg.APIKey), nil
	case "mock":
		return NewMockLiveProvider(), nil
	default:
		return nil, fmt.Errorf("unsupported genai mode %q", cfg.Mode)
	}
}
