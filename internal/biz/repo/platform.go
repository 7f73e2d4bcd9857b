package repo

import (
	"context"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
)

// PlatformRepo is the outbound side of the messaging platform.
// Only the dispatch loop calls the send methods, one call at a time.
type PlatformRepo interface {
	// SendDirectMessage posts to a direct-message conversation. token may be empty.
	SendDirectMessage(ctx context.Context, content, conversationID, token string, isMedia bool) (*domain.SendResult, error)

	// SendGroupReply posts to a group. seq must be unique per token.
	SendGroupReply(ctx context.Context, content, groupID, token string, seq int, isMedia bool) (*domain.SendResult, error)

	// SendUserReply posts to a one-to-one chat. seq must be unique per token.
	SendUserReply(ctx context.Context, content, userID, token string, seq int, isMedia bool) (*domain.SendResult, error)

	// Identity returns who the bot is on the platform
	Identity(ctx context.Context) (domain.BotIdentity, error)
}
