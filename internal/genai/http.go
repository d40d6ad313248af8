package genai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// HTTPClient talks to the generative language REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type wirePart struct {
	Text       string    `json:"text,omitempty"`
	InlineData *wireBlob `json:"inlineData,omitempty"`
}

type wireBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type generateBody struct {
	Contents          []wireContent   `json:"contents"`
	SystemInstruction *wireContent    `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConf `json:"generationConfig,omitempty"`
}

type generationConf struct {
	ResponseMIMEType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (r generateResponse) text() string {
	var sb strings.Builder
	for _, c := range r.Candidates {
		for _, p := range c.Content.Parts {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// GenerateContent performs a single blocking completion request.
func (h *HTTPClient) GenerateContent(ctx context.Context, req GenerateRequest) (string, error) {
	body := generateBody{
		Contents: []wireContent{{Role: "user", Parts: toWireParts(req.Parts)}},
	}
	if req.SystemInstruction != "" {
		body.SystemInstruction = &wireContent{Parts: []wirePart{{Text: req.SystemInstruction}}}
	}
	if req.ResponseMIMEType != "" || req.ResponseSchema != nil {
		body.GenerationConfig = &generationConf{
			ResponseMIMEType: req.ResponseMIMEType,
			ResponseSchema:   req.ResponseSchema,
		}
	}

	resp, err := h.post(ctx, fmt.Sprintf("/v1beta/models/%s:generateContent", req.Model), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readAPIError(resp)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	text := parsed.text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// StreamMessage performs a streaming conversational request and invokes
// onDelta for each text fragment as it arrives. The full reply is returned.
func (h *HTTPClient) StreamMessage(ctx context.Context, req ChatRequest, onDelta DeltaHandler) (string, error) {
	contents := make([]wireContent, 0, len(req.History)+1)
	for _, turn := range req.History {
		contents = append(contents, wireContent{Role: turn.Role, Parts: []wirePart{{Text: turn.Text}}})
	}
	contents = append(contents, wireContent{Role: "user", Parts: []wirePart{{Text: req.Message}}})

	body := generateBody{Contents: contents}
	if req.SystemInstruction != "" {
		body.SystemInstruction = &wireContent{Parts: []wirePart{{Text: req.SystemInstruction}}}
	}

	resp, err := h.post(ctx, fmt.Sprintf("/v1beta/models/%s:streamGenerateContent?alt=sse", req.Model), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readAPIError(resp)
	}
	return consumeSSE(resp.Body, onDelta)
}

func (h *HTTPClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	url := h.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", h.apiKey)

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("genai request: %w", err)
	}
	return resp, nil
}

// consumeSSE scans a server-sent-events body, forwarding each data payload's
// text to onDelta and returning the concatenated reply.
func consumeSSE(r io.Reader, onDelta DeltaHandler) (string, error) {
	var full strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			continue
		}
		var chunk generateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return full.String(), fmt.Errorf("decode stream chunk: %w", err)
		}
		delta := chunk.text()
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return full.String(), err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("read stream: %w", err)
	}
	if full.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return full.String(), nil
}

func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
	msg := strings.TrimSpace(string(raw))
	var parsed generateResponse
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}
	return &APIError{Status: resp.StatusCode, Body: msg}
}

func toWireParts(parts []Part) []wirePart {
	out := make([]wirePart, 0, len(parts))
	for _, p := range parts {
		wp := wirePart{Text: p.Text}
		if p.InlineData != nil {
			wp.InlineData = &wireBlob{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}
		}
		out = append(out, wp)
	}
	return out
}
