package repo

import (
	"context"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
)

// ChatRepo is the conversational model interface
type ChatRepo interface {
	// Complete answers prompt given recent history (oldest first)
	// botID marks which history entries are the bot's own turns
	Complete(ctx context.Context, history []domain.Message, botID, prompt string) (string, error)
}
