package repo

import (
	"context"
	"time"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
)

// MessageRepo is the message repository interface
// Responsible for persisting inbound messages and the bot's own sent messages
type MessageRepo interface {
	// Save stores a message. Messages with an empty ID are stored with a generated one.
	Save(ctx context.Context, msg *domain.Message) error

	// IsBotMessage checks whether a platform message id belongs to a message the bot sent
	IsBotMessage(ctx context.Context, msgID string) (bool, error)

	// ListRecent gets the latest messages for a target, oldest first
	ListRecent(ctx context.Context, kind domain.SurfaceKind, targetID string, limit int) ([]domain.Message, error)

	// CleanupOld deletes messages created before the given time
	CleanupOld(ctx context.Context, before time.Time) (int64, error)

	// Close closes the underlying store
	Close() error
}
