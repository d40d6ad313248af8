package live

import (
	"strings"
	"sync"
	"time"
)

// Turn is one finalized conversation entry.
type Turn struct {
	Role string    `json:"role"` // "user" or "assistant"
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Fallback texts used when a turn completes with an empty accumulator.
const (
	fallbackUserText      = "(অডিও ইনপুট)"
	fallbackAssistantText = "..."
)

// Transcript accumulates in-flight transcript deltas and appends finalized
// turns. The turn log is append-only.
type Transcript struct {
	mu               sync.Mutex
	turns            []Turn
	userPartial      strings.Builder
	assistantPartial strings.Builder
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

// AppendUserDelta accumulates a fragment of the student's speech transcript.
func (t *Transcript) AppendUserDelta(delta string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.userPartial.WriteString(delta)
}

// AppendAssistantDelta accumulates a fragment of the tutor's reply.
func (t *Transcript) AppendAssistantDelta(delta string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.assistantPartial.WriteString(delta)
}

// CommitTurn finalizes the current exchange as a user turn and an assistant
// turn, resetting both accumulators. When both accumulators are empty nothing
// is appended and ok is false. An empty side gets its fallback text.
func (t *Transcript) CommitTurn(at time.Time) (user, assistant Turn, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	userText := t.userPartial.String()
	assistantText := t.assistantPartial.String()
	t.userPartial.Reset()
	t.assistantPartial.Reset()

	if userText == "" && assistantText == "" {
		return Turn{}, Turn{}, false
	}
	if userText == "" {
		userText = fallbackUserText
	}
	if assistantText == "" {
		assistantText = fallbackAssistantText
	}

	user = Turn{Role: "user", Text: userText, At: at}
	assistant = Turn{Role: "assistant", Text: assistantText, At: at}
	t.turns = append(t.turns, user, assistant)
	return user, assistant, true
}

// AppendTurns records already-final turns, used by the typed text fallback.
func (t *Transcript) AppendTurns(turns ...Turn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = append(t.turns, turns...)
}

// Turns returns a copy of the finalized log in order.
func (t *Transcript) Turns() []Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}
