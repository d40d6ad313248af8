package study

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/studybuddyhq/studybuddy/internal/genai"
	"github.com/studybuddyhq/studybuddy/internal/reliability"
)

// FailureReason classifies why a study task could not produce a result.
type FailureReason string

const (
	FailureInvalidInput    FailureReason = "invalid_input"
	FailureInvalidResponse FailureReason = "invalid_response"
	FailureUnreachable     FailureReason = "unreachable"
)

// TaskFailure is the error surface for all study tasks. Retryable is only
// meaningful for unreachable failures.
type TaskFailure struct {
	Reason    FailureReason
	Detail    string
	Retryable bool
}

func (f *TaskFailure) Error() string {
	return fmt.Sprintf("study task failed (%s): %s", f.Reason, f.Detail)
}

// Explanation is the easy-study result: the same idea four ways.
type Explanation struct {
	Bengali   string   `json:"bengali"`
	English   string   `json:"english"`
	Story     string   `json:"story"`
	KeyPoints []string `json:"keyPoints"`
}

// MathSolution is a step-by-step worked answer.
type MathSolution struct {
	Steps       []string `json:"steps"`
	FinalAnswer string   `json:"finalAnswer"`
	Concept     string   `json:"concept"`
}

// Translation is a speaking-practice rendering of a Bengali sentence.
type Translation struct {
	English string `json:"english"`
	Guide   string `json:"guide"`
}

// Service runs the request/response study tasks against the hosted model.
type Service struct {
	client    genai.Client
	textModel string
	mathModel string
}

func NewService(client genai.Client, textModel, mathModel string) *Service {
	return &Service{client: client, textModel: textModel, mathModel: mathModel}
}

const explainPrompt = `You are a friendly StudyBuddy. Explain the following topic to a student.
Topic: %s

Provide the response in the following JSON format:
{
  "bengali": "A very simple explanation in Bengali using easy words.",
  "english": "The same explanation in simple English.",
  "story": "A small relatable story or analogy to help remember the concept.",
  "keyPoints": ["Point 1", "Point 2", "Point 3"]
}

If an image is provided, analyze the text/diagram in the image first.
Be encouraging and supportive like a friend, not a strict teacher.`

const mathPrompt = `Solve this math problem step-by-step.
Explain each step simply in Bengali so a student can understand 'why' we do it.
Problem: %s

Provide the response in the following JSON format:
{
  "steps": ["Step 1 description in Bengali", "Step 2 description in Bengali", "..."],
  "finalAnswer": "The final result (bold)",
  "concept": "A brief explanation of the underlying mathematical concept in Bengali."
}

If an image is provided, extract the math problem from it first.`

const translatePrompt = `Translate this Bengali sentence into simple natural English for speaking practice. Also provide a simple Bengali pronunciation guide.
Sentence: "%s"`

const answerInstruction = `You are StudyBuddy, a kind tutor for Bengali-speaking students. Answer the student's question simply, mixing Bengali and easy English. Keep the answer short and encouraging.`

var explanationSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"bengali":   map[string]any{"type": "STRING"},
		"english":   map[string]any{"type": "STRING"},
		"story":     map[string]any{"type": "STRING"},
		"keyPoints": map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}},
	},
	"required": []string{"bengali", "english", "story", "keyPoints"},
}

var mathSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"steps":       map[string]any{"type": "ARRAY", "items": map[string]any{"type": "STRING"}},
		"finalAnswer": map[string]any{"type": "STRING"},
		"concept":     map[string]any{"type": "STRING"},
	},
	"required": []string{"steps", "finalAnswer", "concept"},
}

var translationSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"english": map[string]any{"type": "STRING", "description": "Correct natural English translation"},
		"guide":   map[string]any{"type": "STRING", "description": "Simple Bengali pronunciation guide"},
	},
	"required": []string{"english", "guide"},
}

// Explain produces a four-part explanation of a topic. imageBase64 may carry
// a JPEG photo of the material; empty means text only.
func (s *Service) Explain(ctx context.Context, topic, imageBase64 string) (*Explanation, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" && strings.TrimSpace(imageBase64) == "" {
		return nil, &TaskFailure{Reason: FailureInvalidInput, Detail: "topic is required"}
	}

	raw, err := s.generateJSON(ctx, s.textModel, fmt.Sprintf(explainPrompt, topic), imageBase64, explanationSchema)
	if err != nil {
		return nil, err
	}
	var out Explanation
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, &TaskFailure{Reason: FailureInvalidResponse, Detail: "malformed explanation payload"}
	}
	if out.Bengali == "" || out.English == "" || len(out.KeyPoints) == 0 {
		return nil, &TaskFailure{Reason: FailureInvalidResponse, Detail: "explanation payload missing required fields"}
	}
	return &out, nil
}

// SolveMath works a problem step by step using the stronger reasoning model.
func (s *Service) SolveMath(ctx context.Context, problem, imageBase64 string) (*MathSolution, error) {
	problem = strings.TrimSpace(problem)
	if problem == "" && strings.TrimSpace(imageBase64) == "" {
		return nil, &TaskFailure{Reason: FailureInvalidInput, Detail: "problem is required"}
	}

	raw, err := s.generateJSON(ctx, s.mathModel, fmt.Sprintf(mathPrompt, problem), imageBase64, mathSchema)
	if err != nil {
		return nil, err
	}
	var out MathSolution
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, &TaskFailure{Reason: FailureInvalidResponse, Detail: "malformed solution payload"}
	}
	if len(out.Steps) == 0 || out.FinalAnswer == "" {
		return nil, &TaskFailure{Reason: FailureInvalidResponse, Detail: "solution payload missing required fields"}
	}
	return &out, nil
}

// Translate renders a Bengali sentence into natural English with a
// pronunciation guide.
func (s *Service) Translate(ctx context.Context, sentence string) (*Translation, error) {
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return nil, &TaskFailure{Reason: FailureInvalidInput, Detail: "sentence is required"}
	}

	raw, err := s.generateJSON(ctx, s.textModel, fmt.Sprintf(translatePrompt, sentence), "", translationSchema)
	if err != nil {
		return nil, err
	}
	var out Translation
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, &TaskFailure{Reason: FailureInvalidResponse, Detail: "malformed translation payload"}
	}
	if out.English == "" || out.Guide == "" {
		return nil, &TaskFailure{Reason: FailureInvalidResponse, Detail: "translation payload missing required fields"}
	}
	return &out, nil
}

// Answer handles a free-form question with a plain-text reply.
func (s *Service) Answer(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", &TaskFailure{Reason: FailureInvalidInput, Detail: "question is required"}
	}

	text, err := s.client.GenerateContent(ctx, genai.GenerateRequest{
		Model:             s.textModel,
		SystemInstruction: answerInstruction,
		Parts:             []genai.Part{{Text: question}},
	})
	if err != nil {
		return "", classify(err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &TaskFailure{Reason: FailureInvalidResponse, Detail: "empty answer"}
	}
	return text, nil
}

func (s *Service) generateJSON(ctx context.Context, model, prompt, imageBase64 string, schema map[string]any) (string, error) {
	parts := []genai.Part{{Text: prompt}}
	if img := strings.TrimSpace(imageBase64); img != "" {
		// Accept both raw base64 and data-URL prefixed payloads.
		if _, rest, ok := strings.Cut(img, ","); ok {
			img = rest
		}
		parts = append(parts, genai.Part{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: img}})
	}

	raw, err := s.client.GenerateContent(ctx, genai.GenerateRequest{
		Model:            model,
		Parts:            parts,
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	})
	if err != nil {
		return "", classify(err)
	}
	return stripCodeFence(raw), nil
}

// classify maps client errors onto the task failure taxonomy.
func classify(err error) error {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return &TaskFailure{
			Reason:    FailureUnreachable,
			Detail:    apiErr.Body,
			Retryable: reliability.IsRetryableHTTPStatus(apiErr.Status),
		}
	}
	if errors.Is(err, genai.ErrEmptyResponse) {
		return &TaskFailure{Reason: FailureInvalidResponse, Detail: "empty model response"}
	}
	return &TaskFailure{Reason: FailureUnreachable, Detail: err.Error(), Retryable: true}
}

// stripCodeFence removes a markdown fence the model sometimes wraps JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
