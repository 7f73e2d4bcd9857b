package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
	"github.com/wechatter/qq-bot-bridge/internal/biz/repo"
)

// ChatConfig contains chat command configuration
type ChatConfig struct {
	CommandPrefix string // e.g. "/gpt"
	HistoryLimit  int    // history messages passed to the model
	MaxReplyRunes int    // longer answers are cut
}

// DefaultChatConfig returns default chat configuration
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		CommandPrefix: "/gpt",
		HistoryLimit:  10,
		MaxReplyRunes: 1800,
	}
}

// ConversationUsecase decides whether an inbound message is addressed to the
// chat model and produces the answer
type ConversationUsecase struct {
	chatRepo    repo.ChatRepo
	messageRepo repo.MessageRepo
	cfg         ChatConfig
}

// NewConversationUsecase creates a new conversation usecase. chatRepo may be
// nil, in which case no message is answered.
func NewConversationUsecase(chatRepo repo.ChatRepo, messageRepo repo.MessageRepo, cfg ChatConfig) *ConversationUsecase {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultChatConfig().HistoryLimit
	}
	return &ConversationUsecase{
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		cfg:         cfg,
	}
}

// Remember stores an inbound message so it shows up in later history
func (uc *ConversationUsecase) Remember(ctx context.Context, msg *domain.InboundMessage) error {
	if uc.messageRepo == nil {
		return nil
	}
	return uc.messageRepo.Save(ctx, msg.ToMessage())
}

// Prompt returns the prompt for the chat model, or false when the message is
// not for it. A message is for the model when it starts with the command
// prefix or quotes one of the bot's own messages.
func (uc *ConversationUsecase) Prompt(ctx context.Context, msg *domain.InboundMessage) (string, bool) {
	if uc.chatRepo == nil {
		return "", false
	}
	if args, ok := msg.CommandArgs(uc.cfg.CommandPrefix); ok {
		return args, args != ""
	}
	if msg.QuotedID != "" && uc.messageRepo != nil {
		isBot, err := uc.messageRepo.IsBotMessage(ctx, msg.QuotedID)
		if err == nil && isBot {
			prompt := strings.TrimSpace(msg.Content)
			return prompt, prompt != ""
		}
	}
	return "", false
}

// Answer asks the chat model about prompt with the recent history of the
// conversation msg belongs to
func (uc *ConversationUsecase) Answer(ctx context.Context, msg *domain.InboundMessage, botID, prompt string) (string, error) {
	var history []domain.Message
	if uc.messageRepo != nil {
		recent, err := uc.messageRepo.ListRecent(ctx, msg.Kind, msg.TargetID, uc.cfg.HistoryLimit+1)
		if err == nil {
			history = excludeMessage(recent, msg.ID)
		}
	}

	answer, err := uc.chatRepo.Complete(ctx, history, botID, prompt)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	return truncateRunes(strings.TrimSpace(answer), uc.cfg.MaxReplyRunes), nil
}

func excludeMessage(messages []domain.Message, id string) []domain.Message {
	out := messages[:0:0]
	for _, m := range messages {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
