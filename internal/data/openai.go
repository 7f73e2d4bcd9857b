package data

import (
	"context"
	"fmt"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
	"github.com/wechatter/qq-bot-bridge/internal/biz/repo"
	"github.com/wechatter/qq-bot-bridge/internal/infra/openai"
)

// chatModel is the part of the openai client the repository uses
type chatModel interface {
	Chat(ctx context.Context, turns []openai.Turn) (string, error)
}

// openaiRepo implements the Chat repository on an OpenAI compatible API
type openaiRepo struct {
	client chatModel
}

// NewOpenAIRepo creates a Chat repository. Returns nil when client is nil so
// the conversation usecase answers nothing.
func NewOpenAIRepo(client *openai.Client) repo.ChatRepo {
	if client == nil {
		return nil
	}
	return &openaiRepo{client: client}
}

// Complete maps history to chat turns, the bot's own messages becoming
// assistant turns, and asks prompt last
func (r *openaiRepo) Complete(ctx context.Context, history []domain.Message, botID, prompt string) (string, error) {
	turns := make([]openai.Turn, 0, len(history)+1)
	for _, m := range history {
		if m.Content == "" || m.IsMedia {
			continue
		}
		if m.IsFromBot(botID) {
			turns = append(turns, openai.Turn{Assistant: true, Content: m.Content})
			continue
		}
		content := m.Content
		if m.SenderName != "" {
			content = fmt.Sprintf("%s: %s", m.SenderName, m.Content)
		}
		turns = append(turns, openai.Turn{Content: content})
	}
	turns = append(turns, openai.Turn{Content: prompt})
	return r.client.Chat(ctx, turns)
}
