package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
	"github.com/wechatter/qq-bot-bridge/internal/biz/usecase"
)

// Outbox is where outbound messages and fresh reply tokens go
type Outbox interface {
	EnqueueSend(ctx context.Context, target domain.TargetRef, content, replyToken string, isMedia bool) (string, error)
	NotifyFreshToken(ctx context.Context, kind domain.SurfaceKind, token string) error
}

// IdentityProvider knows who the bot is
type IdentityProvider interface {
	Identity() domain.BotIdentity
}

const answerFailedText = "Sorry, I could not answer that right now."

// ChatService handles inbound platform messages: every message announces a
// fresh reply token, and messages addressed to the chat model are answered
// through the outbox
type ChatService struct {
	convUC   *usecase.ConversationUsecase
	outbox   Outbox
	identity IdentityProvider
	logger   *slog.Logger

	// targets with an answer in progress
	busy   map[string]bool
	busyMu sync.Mutex
}

// NewChatService creates a new chat service
func NewChatService(convUC *usecase.ConversationUsecase, outbox Outbox, identity IdentityProvider) *ChatService {
	return &ChatService{
		convUC:   convUC,
		outbox:   outbox,
		identity: identity,
		logger:   slog.Default().With("component", "chat"),
		busy:     make(map[string]bool),
	}
}

// HandleMessage processes one inbound message. It blocks while the chat
// model answers, so callers run it off the webhook path.
func (s *ChatService) HandleMessage(ctx context.Context, msg *domain.InboundMessage) error {
	bot := s.identity.Identity()
	if bot.ID != "" && msg.SenderID == bot.ID {
		return nil
	}

	if err := s.convUC.Remember(ctx, msg); err != nil {
		s.logger.Warn("failed to store inbound message", "msg_id", msg.ID, "error", err)
	}

	// the inbound message id is a reply token for this surface
	if err := s.outbox.NotifyFreshToken(ctx, msg.Kind, msg.ID); err != nil {
		return fmt.Errorf("notify fresh token: %w", err)
	}

	prompt, ok := s.convUC.Prompt(ctx, msg)
	if !ok {
		return nil
	}

	target := msg.ReplyTarget()
	if !s.acquire(target.String()) {
		s.logger.Info("answer already in progress, skipping", "target", target.String(), "msg_id", msg.ID)
		return nil
	}
	defer s.release(target.String())

	answer, err := s.convUC.Answer(ctx, msg, bot.ID, prompt)
	if err != nil {
		s.logger.Error("chat answer failed", "target", target.String(), "error", err)
		answer = answerFailedText
	}
	if answer == "" {
		return nil
	}

	id, err := s.outbox.EnqueueSend(ctx, target, answer, msg.ID, false)
	if err != nil {
		return fmt.Errorf("enqueue answer: %w", err)
	}
	s.logger.Debug("answer queued", "request_id", id, "target", target.String(), "runes", len([]rune(answer)))
	return nil
}

func (s *ChatService) acquire(key string) bool {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	if s.busy[key] {
		return false
	}
	s.busy[key] = true
	return true
}

func (s *ChatService) release(key string) {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	delete(s.busy, key)
}
