package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
	"github.com/wechatter/qq-bot-bridge/internal/biz/repo"
)

// SendResultRecorder stores every delivered message as a message from the bot,
// so later quoted replies to it can be recognised.
type SendResultRecorder struct {
	messageRepo repo.MessageRepo
	now         func() time.Time

	mu  sync.RWMutex
	bot domain.BotIdentity
}

// NewSendResultRecorder creates a recorder. messageRepo may be nil, in which
// case nothing is stored.
func NewSendResultRecorder(messageRepo repo.MessageRepo, bot domain.BotIdentity) *SendResultRecorder {
	return &SendResultRecorder{
		messageRepo: messageRepo,
		now:         time.Now,
		bot:         bot,
	}
}

// SetIdentity replaces the bot identity used for attribution
func (r *SendResultRecorder) SetIdentity(bot domain.BotIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bot = bot
}

// Identity returns the bot identity used for attribution
func (r *SendResultRecorder) Identity() domain.BotIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bot
}

// Record persists a delivered request. The content echoed back by the
// platform wins over the content we sent.
func (r *SendResultRecorder) Record(ctx context.Context, req *domain.SendRequest, result *domain.SendResult) error {
	if r.messageRepo == nil {
		return nil
	}

	content := req.Content
	platformMsgID := ""
	if result != nil {
		platformMsgID = result.MessageID
		if result.Content != "" {
			content = result.Content
		}
	}

	msg := domain.NewSentMessage(r.Identity(), req.Target, content, platformMsgID, req.IsMedia, r.now())
	if err := r.messageRepo.Save(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrRecorder, err)
	}
	return nil
}
