package data

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
)

func newTestMessageRepo(t *testing.T) *messageRepo {
	t.Helper()
	r, err := NewMessageRepo(filepath.Join(t.TempDir(), "nested", "messages.db"))
	if err != nil {
		t.Fatalf("Failed to create repo: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r.(*messageRepo)
}

func TestMessageRepo_SaveAndIsBotMessage(t *testing.T) {
	r := newTestMessageRepo(t)
	ctx := context.Background()

	sent := domain.NewSentMessage(domain.BotIdentity{ID: "bot-1", Name: "Wechatter"},
		domain.GroupTarget("g1", &domain.GroupSnapshot{ID: "g1", Name: "Gophers"}),
		"hello", "pm-1", false, time.Now())
	if err := r.Save(ctx, sent); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	inbound := &domain.Message{ID: "in-1", Kind: domain.SurfaceGroupReply, TargetID: "g1", Content: "hi", SenderID: "u1"}
	if err := r.Save(ctx, inbound); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	isBot, err := r.IsBotMessage(ctx, "pm-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !isBot {
		t.Error("Expected pm-1 to be a bot message")
	}

	isBot, _ = r.IsBotMessage(ctx, "in-1")
	if isBot {
		t.Error("Expected in-1 not to be a bot message")
	}
	isBot, _ = r.IsBotMessage(ctx, "")
	if isBot {
		t.Error("Expected empty id not to match")
	}
}

func TestMessageRepo_SaveGeneratesID(t *testing.T) {
	r := newTestMessageRepo(t)
	msg := &domain.Message{Kind: domain.SurfaceDirectMessage, TargetID: "guild-1", Content: "x", IsBot: true}

	if err := r.Save(context.Background(), msg); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if msg.ID == "" {
		t.Error("Expected generated id")
	}
	if msg.CreateTime.IsZero() {
		t.Error("Expected create time to be set")
	}
}

func TestMessageRepo_ListRecent(t *testing.T) {
	r := newTestMessageRepo(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, content := range []string{"one", "two", "three", "four"} {
		msg := &domain.Message{
			ID:         content,
			Kind:       domain.SurfaceUserReply,
			TargetID:   "u1",
			Content:    content,
			CreateTime: base.Add(time.Duration(i) * time.Minute),
			IsBot:      i%2 == 1,
		}
		if err := r.Save(ctx, msg); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	other := &domain.Message{ID: "other", Kind: domain.SurfaceGroupReply, TargetID: "u1", Content: "elsewhere", CreateTime: base}
	if err := r.Save(ctx, other); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	messages, err := r.ListRecent(ctx, domain.SurfaceUserReply, "u1", 3)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(messages))
	}
	for i, want := range []string{"two", "three", "four"} {
		if messages[i].Content != want {
			t.Errorf("Expected %s at %d, got %s", want, i, messages[i].Content)
		}
	}
	if !messages[0].IsBot || messages[1].IsBot {
		t.Error("Expected is_bot flags to round trip")
	}
}

func TestMessageRepo_CleanupOld(t *testing.T) {
	r := newTestMessageRepo(t)
	ctx := context.Background()

	old := &domain.Message{ID: "old", Kind: domain.SurfaceUserReply, TargetID: "u1", Content: "x", CreateTime: time.Now().Add(-48 * time.Hour)}
	recent := &domain.Message{ID: "new", Kind: domain.SurfaceUserReply, TargetID: "u1", Content: "y", CreateTime: time.Now()}
	_ = r.Save(ctx, old)
	_ = r.Save(ctx, recent)

	removed, err := r.CleanupOld(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}

	messages, _ := r.ListRecent(ctx, domain.SurfaceUserReply, "u1", 10)
	if len(messages) != 1 || messages[0].ID != "new" {
		t.Errorf("Expected only the recent message, got %+v", messages)
	}
}
