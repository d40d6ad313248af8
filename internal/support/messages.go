package support

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studybuddyhq/studybuddy/internal/store"
)

const messagesKey = "messages"

var ErrEmptyText = errors.New("message text must not be empty")

// Message is one append-only support-chat record. Messages are never mutated,
// deleted, or reordered; the list order is insertion order.
type Message struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	UserName     string    `json:"userName"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"createdAt"`
	IsAdminReply bool      `json:"isAdminReply"`
}

// Inbox groups a user's pending messages for the admin listing.
type Inbox struct {
	UserID   string    `json:"userId"`
	UserName string    `json:"userName"`
	Messages []Message `json:"messages"`
}

// Service is the append-only support/admin messaging store. The full list is
// persisted after each append, mirroring the storage contract of the rest of
// the app state.
type Service struct {
	mu  sync.Mutex
	kv  store.KV
	now func() time.Time
}

func NewService(kv store.KV) *Service {
	return &Service{kv: kv, now: time.Now}
}

// PostUserMessage appends a student-originated message.
func (s *Service) PostUserMessage(ctx context.Context, userID, userName, text string) (Message, error) {
	return s.append(ctx, userID, userName, text, false)
}

// PostAdminReply appends an admin reply addressed to userID.
func (s *Service) PostAdminReply(ctx context.Context, userID, userName, text string) (Message, error) {
	return s.append(ctx, userID, userName, text, true)
}

func (s *Service) append(ctx context.Context, userID, userName, text string, adminReply bool) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, ErrEmptyText
	}
	if strings.TrimSpace(userID) == "" {
		return Message{}, errors.New("user id is required")
	}

	msg := Message{
		ID:           uuid.NewString(),
		UserID:       userID,
		UserName:     userName,
		Text:         strings.TrimSpace(text),
		CreatedAt:    s.now().UTC(),
		IsAdminReply: adminReply,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.listLocked(ctx)
	if err != nil {
		return Message{}, err
	}
	all = append(all, msg)
	if err := store.SaveJSON(ctx, s.kv, messagesKey, all); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// ListForUser returns the conversation visible to one student: their own
// messages plus admin replies addressed to them, in insertion order.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.listLocked(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(all))
	for _, m := range all {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListAll returns every message in insertion order.
func (s *Service) ListAll(ctx context.Context) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(ctx)
}

// PendingByUser groups user-originated messages by user id for the admin
// inbox. "Pending" means the user has at least one non-reply message; there is
// no read/unread tracking.
func (s *Service) PendingByUser(ctx context.Context) ([]Inbox, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.listLocked(ctx)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string]*Inbox)
	var order []string
	for _, m := range all {
		if m.IsAdminReply {
			continue
		}
		box, ok := byUser[m.UserID]
		if !ok {
			box = &Inbox{UserID: m.UserID, UserName: m.UserName}
			byUser[m.UserID] = box
			order = append(order, m.UserID)
		}
		box.UserName = m.UserName
		box.Messages = append(box.Messages, m)
	}

	out := make([]Inbox, 0, len(order))
	for _, id := range order {
		out = append(out, *byUser[id])
	}
	return out, nil
}

func (s *Service) listLocked(ctx context.Context) ([]Message, error) {
	var all []Message
	if _, err := store.LoadJSON(ctx, s.kv, messagesKey, &all); err != nil {
		return nil, err
	}
	return all, nil
}
