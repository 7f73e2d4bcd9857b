package data

import (
	"errors"

	"github.com/wechatter/qq-bot-bridge/internal/biz/repo"
	"github.com/wechatter/qq-bot-bridge/internal/infra/feishu"
	"github.com/wechatter/qq-bot-bridge/internal/infra/openai"
	"github.com/wechatter/qq-bot-bridge/internal/infra/qq"
)

// Clients are the infra clients repositories are built on.
// Exactly one of QQ and Feishu is set. Chat may be nil.
type Clients struct {
	QQ     *qq.Client
	Feishu *feishu.Client
	Chat   *openai.Client
}

// Repositories contains all repositories
type Repositories struct {
	Platform repo.PlatformRepo
	Message  repo.MessageRepo
	Chat     repo.ChatRepo // nil without a chat model
}

// NewRepositories creates all repositories
func NewRepositories(clients Clients, messageDBPath string) (*Repositories, error) {
	var platform repo.PlatformRepo
	switch {
	case clients.QQ != nil:
		platform = NewQQRepo(clients.QQ)
	case clients.Feishu != nil:
		platform = NewFeishuRepo(clients.Feishu)
	default:
		return nil, errors.New("no platform client configured")
	}

	messageRepo, err := NewMessageRepo(messageDBPath)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Platform: platform,
		Message:  messageRepo,
		Chat:     NewOpenAIRepo(clients.Chat),
	}, nil
}

// Close releases the message store
func (r *Repositories) Close() error {
	return r.Message.Close()
}
