package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
	"github.com/wechatter/qq-bot-bridge/internal/biz/usecase"
)

// Mock implementations

type enqueued struct {
	Target  domain.TargetRef
	Content string
	Token   string
}

type freshNotice struct {
	Kind  domain.SurfaceKind
	Token string
}

type mockOutbox struct {
	mu       sync.Mutex
	sends    []enqueued
	fresh    []freshNotice
	failSend error
}

func (m *mockOutbox) EnqueueSend(ctx context.Context, target domain.TargetRef, content, replyToken string, isMedia bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSend != nil {
		return "", m.failSend
	}
	m.sends = append(m.sends, enqueued{target, content, replyToken})
	return "req-1", nil
}

func (m *mockOutbox) NotifyFreshToken(ctx context.Context, kind domain.SurfaceKind, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fresh = append(m.fresh, freshNotice{kind, token})
	return nil
}

type staticIdentity domain.BotIdentity

func (s staticIdentity) Identity() domain.BotIdentity { return domain.BotIdentity(s) }

type mockChatRepo struct {
	answer string
	err    error
	calls  int
}

func (m *mockChatRepo) Complete(ctx context.Context, history []domain.Message, botID, prompt string) (string, error) {
	m.calls++
	return m.answer, m.err
}

type mockMessageRepo struct {
	mu    sync.Mutex
	saved []*domain.Message
	bots  map[string]bool

	cleanedBefore time.Time
}

func (m *mockMessageRepo) Save(ctx context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, msg)
	return nil
}

func (m *mockMessageRepo) IsBotMessage(ctx context.Context, msgID string) (bool, error) {
	return m.bots[msgID], nil
}

func (m *mockMessageRepo) ListRecent(ctx context.Context, kind domain.SurfaceKind, targetID string, limit int) ([]domain.Message, error) {
	return nil, nil
}

func (m *mockMessageRepo) CleanupOld(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanedBefore = before
	return 3, nil
}

func (m *mockMessageRepo) Close() error { return nil }

func newTestChatService(chat *mockChatRepo) (*ChatService, *mockOutbox, *mockMessageRepo) {
	messages := &mockMessageRepo{bots: map[string]bool{"bot-msg": true}}
	convUC := usecase.NewConversationUsecase(chat, messages, usecase.DefaultChatConfig())
	outbox := &mockOutbox{}
	return NewChatService(convUC, outbox, staticIdentity{ID: "bot-1", Name: "Wechatter"}), outbox, messages
}

func groupInbound(id, content string) *domain.InboundMessage {
	return &domain.InboundMessage{
		ID:         id,
		Kind:       domain.SurfaceGroupReply,
		TargetID:   "g1",
		Group:      &domain.GroupSnapshot{ID: "g1", Name: "Gophers"},
		SenderID:   "u1",
		Content:    content,
		CreateTime: time.Now(),
	}
}

func TestChatService_CommandIsAnswered(t *testing.T) {
	chat := &mockChatRepo{answer: "42"}
	svc, outbox, messages := newTestChatService(chat)

	if err := svc.HandleMessage(context.Background(), groupInbound("in-1", "/gpt meaning of life")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(outbox.fresh) != 1 || outbox.fresh[0] != (freshNotice{domain.SurfaceGroupReply, "in-1"}) {
		t.Errorf("Expected fresh token in-1, got %+v", outbox.fresh)
	}
	if len(outbox.sends) != 1 {
		t.Fatalf("Expected 1 send, got %d", len(outbox.sends))
	}
	send := outbox.sends[0]
	if send.Content != "42" || send.Token != "in-1" || send.Target.GroupID != "g1" {
		t.Errorf("Unexpected send: %+v", send)
	}
	if len(messages.saved) != 1 || messages.saved[0].ID != "in-1" {
		t.Errorf("Expected inbound message to be stored, got %+v", messages.saved)
	}
}

func TestChatService_PlainMessageOnlyRefreshesToken(t *testing.T) {
	chat := &mockChatRepo{answer: "unused"}
	svc, outbox, _ := newTestChatService(chat)

	if err := svc.HandleMessage(context.Background(), groupInbound("in-2", "just chatting")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(outbox.fresh) != 1 {
		t.Errorf("Expected fresh token, got %+v", outbox.fresh)
	}
	if len(outbox.sends) != 0 || chat.calls != 0 {
		t.Errorf("Expected no answer, got %d sends and %d chat calls", len(outbox.sends), chat.calls)
	}
}

func TestChatService_QuoteOfBotIsAnswered(t *testing.T) {
	chat := &mockChatRepo{answer: "sure"}
	svc, outbox, _ := newTestChatService(chat)

	msg := groupInbound("in-3", "tell me more")
	msg.QuotedID = "bot-msg"
	if err := svc.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(outbox.sends) != 1 || outbox.sends[0].Content != "sure" {
		t.Errorf("Expected answer to quote, got %+v", outbox.sends)
	}
}

func TestChatService_IgnoresOwnMessages(t *testing.T) {
	svc, outbox, messages := newTestChatService(&mockChatRepo{answer: "x"})

	msg := groupInbound("in-4", "/gpt echo")
	msg.SenderID = "bot-1"
	if err := svc.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(outbox.fresh) != 0 || len(outbox.sends) != 0 || len(messages.saved) != 0 {
		t.Error("Expected the bot's own message to be ignored")
	}
}

func TestChatService_AnswerFailureSendsApology(t *testing.T) {
	svc, outbox, _ := newTestChatService(&mockChatRepo{err: errors.New("rate limited")})

	if err := svc.HandleMessage(context.Background(), groupInbound("in-5", "/gpt hi")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(outbox.sends) != 1 || outbox.sends[0].Content != answerFailedText {
		t.Errorf("Expected apology, got %+v", outbox.sends)
	}
}

func TestChatService_EnqueueFailure(t *testing.T) {
	svc, outbox, _ := newTestChatService(&mockChatRepo{answer: "x"})
	outbox.failSend = domain.ErrDispatcherStopped

	err := svc.HandleMessage(context.Background(), groupInbound("in-6", "/gpt hi"))
	if !errors.Is(err, domain.ErrDispatcherStopped) {
		t.Errorf("Expected ErrDispatcherStopped, got %v", err)
	}
}

func TestChatService_SkipsWhileBusy(t *testing.T) {
	chat := &mockChatRepo{answer: "x"}
	svc, outbox, _ := newTestChatService(chat)

	target := groupInbound("in-7", "/gpt hi").ReplyTarget()
	if !svc.acquire(target.String()) {
		t.Fatal("Expected to acquire target")
	}
	if err := svc.HandleMessage(context.Background(), groupInbound("in-7", "/gpt hi")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if chat.calls != 0 || len(outbox.sends) != 0 {
		t.Error("Expected no answer while another is in progress")
	}
	svc.release(target.String())

	if err := svc.HandleMessage(context.Background(), groupInbound("in-8", "/gpt hi")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(outbox.sends) != 1 {
		t.Errorf("Expected answer after release, got %d sends", len(outbox.sends))
	}
}
