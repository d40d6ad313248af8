package support

import (
	"context"
	"fmt"
	"testing"

	"github.com/studybuddyhq/studybuddy/internal/store"
)

func TestAppendOnlyOrderPreserved(t *testing.T) {
	s := NewService(store.NewInMemoryKV())
	ctx := context.Background()

	before, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}

	const k = 5
	for i := 0; i < k; i++ {
		if _, err := s.PostUserMessage(ctx, "u1", "রিমা", fmt.Sprintf("বার্তা %d", i)); err != nil {
			t.Fatalf("PostUserMessage() error = %v", err)
		}
	}

	after, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(after) != len(before)+k {
		t.Fatalf("list length = %d, want %d", len(after), len(before)+k)
	}
	for i := 0; i < k; i++ {
		want := fmt.Sprintf("বার্তা %d", i)
		if after[i].Text != want {
			t.Fatalf("message %d = %q, want %q (reordered?)", i, after[i].Text, want)
		}
	}
}

func TestRejectsEmptyText(t *testing.T) {
	s := NewService(store.NewInMemoryKV())
	if _, err := s.PostUserMessage(context.Background(), "u1", "রিমা", "   "); err != ErrEmptyText {
		t.Fatalf("PostUserMessage(blank) error = %v, want ErrEmptyText", err)
	}
}

func TestListForUserIncludesAdminReplies(t *testing.T) {
	s := NewService(store.NewInMemoryKV())
	ctx := context.Background()

	if _, err := s.PostUserMessage(ctx, "u1", "রিমা", "সাহায্য চাই"); err != nil {
		t.Fatalf("PostUserMessage() error = %v", err)
	}
	if _, err := s.PostUserMessage(ctx, "u2", "করিম", "আমারও"); err != nil {
		t.Fatalf("PostUserMessage() error = %v", err)
	}
	if _, err := s.PostAdminReply(ctx, "u1", "রিমা", "বলুন কী সমস্যা"); err != nil {
		t.Fatalf("PostAdminReply() error = %v", err)
	}

	msgs, err := s.ListForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("ListForUser() returned %d messages, want 2", len(msgs))
	}
	if msgs[0].IsAdminReply || !msgs[1].IsAdminReply {
		t.Fatalf("unexpected reply flags: %+v", msgs)
	}
}

func TestPendingByUserGroupsOnlyUserMessages(t *testing.T) {
	s := NewService(store.NewInMemoryKV())
	ctx := context.Background()

	_, _ = s.PostUserMessage(ctx, "u1", "রিমা", "এক")
	_, _ = s.PostUserMessage(ctx, "u2", "করিম", "দুই")
	_, _ = s.PostUserMessage(ctx, "u1", "রিমা", "তিন")
	_, _ = s.PostAdminReply(ctx, "u1", "রিমা", "উত্তর")

	boxes, err := s.PendingByUser(ctx)
	if err != nil {
		t.Fatalf("PendingByUser() error = %v", err)
	}
	if len(boxes) != 2 {
		t.Fatalf("pending groups = %d, want 2", len(boxes))
	}
	if boxes[0].UserID != "u1" || len(boxes[0].Messages) != 2 {
		t.Fatalf("group u1 = %+v", boxes[0])
	}
	for _, box := range boxes {
		for _, m := range box.Messages {
			if m.IsAdminReply {
				t.Fatalf("admin reply leaked into pending inbox: %+v", m)
			}
		}
	}
}
