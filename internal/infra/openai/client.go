package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultModel   = "gpt-4o-mini"
	requestTimeout = 60 * time.Second
)

// DefaultSystemPrompt frames the chat model as a group chat member
const DefaultSystemPrompt = `You are a helpful assistant taking part in a QQ chat.

Reply in the language of the question. Keep answers short enough for a chat
message, use plain text and avoid markdown tables.`

// Client is the chat completion client. Any OpenAI compatible endpoint works.
type Client struct {
	client       *openai.Client
	model        string
	systemPrompt string
	logger       *slog.Logger
}

// NewClient creates a new chat client. An empty baseURL uses the OpenAI API.
func NewClient(apiKey, baseURL, model string) *Client {
	if model == "" {
		model = defaultModel
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	return &Client{
		client:       openai.NewClientWithConfig(config),
		model:        model,
		systemPrompt: DefaultSystemPrompt,
		logger:       slog.Default().With("component", "openai"),
	}
}

// SetSystemPrompt replaces the system prompt
func (c *Client) SetSystemPrompt(prompt string) {
	if prompt != "" {
		c.systemPrompt = prompt
	}
}

// Model returns the model name
func (c *Client) Model() string {
	return c.model
}

// Turn is one message of a conversation
type Turn struct {
	Assistant bool
	Content   string
}

// Chat sends the system prompt followed by turns and returns the answer
func (c *Client) Chat(ctx context.Context, turns []Turn) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt})
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Assistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.logger.Debug("chat completion", "model", c.model, "turns", len(turns),
		"tokens", resp.Usage.TotalTokens, "elapsed", time.Since(start))
	return answer, nil
}
