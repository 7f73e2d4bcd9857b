package data

import (
	"context"
	"errors"
	"fmt"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
	"github.com/wechatter/qq-bot-bridge/internal/biz/repo"
	"github.com/wechatter/qq-bot-bridge/internal/infra/feishu"
)

// feishuAPI is the part of the Feishu client the repository uses
type feishuAPI interface {
	Send(ctx context.Context, chatID, msgType, content, uuid string) (string, error)
	Reply(ctx context.Context, messageID, msgType, content, uuid string) (string, error)
	Bot(ctx context.Context) (feishu.BotInfo, error)
}

// feishuRepo implements the Platform repository on Feishu.
// Every surface addresses a chat id; a reply token is the id of the
// message being replied to.
type feishuRepo struct {
	client feishuAPI
}

// NewFeishuRepo creates a new Feishu platform repository
func NewFeishuRepo(client *feishu.Client) repo.PlatformRepo {
	return &feishuRepo{client: client}
}

// SendDirectMessage sends to a chat
func (r *feishuRepo) SendDirectMessage(ctx context.Context, content, conversationID, token string, isMedia bool) (*domain.SendResult, error) {
	return r.send(ctx, content, conversationID, token, 0, isMedia)
}

// SendGroupReply sends to a group chat
func (r *feishuRepo) SendGroupReply(ctx context.Context, content, groupID, token string, seq int, isMedia bool) (*domain.SendResult, error) {
	return r.send(ctx, content, groupID, token, seq, isMedia)
}

// SendUserReply sends to a one-to-one chat
func (r *feishuRepo) SendUserReply(ctx context.Context, content, userID, token string, seq int, isMedia bool) (*domain.SendResult, error) {
	return r.send(ctx, content, userID, token, seq, isMedia)
}

func (r *feishuRepo) send(ctx context.Context, content, chatID, token string, seq int, isMedia bool) (*domain.SendResult, error) {
	msgType, body := larkim.MsgTypeText, feishu.TextContent(content)
	if isMedia {
		msgType, body = larkim.MsgTypeImage, feishu.ImageContent(content)
	}

	var (
		msgID string
		err   error
	)
	if token != "" {
		// token and seq make the call idempotent across retries
		msgID, err = r.client.Reply(ctx, token, msgType, body, fmt.Sprintf("%s-%d", token, seq))
	} else {
		msgID, err = r.client.Send(ctx, chatID, msgType, body, "")
	}
	if err != nil {
		return nil, feishuError(err)
	}
	return &domain.SendResult{MessageID: msgID}, nil
}

// Identity returns the bot account
func (r *feishuRepo) Identity(ctx context.Context) (domain.BotIdentity, error) {
	bot, err := r.client.Bot(ctx)
	if err != nil {
		return domain.BotIdentity{}, feishuError(err)
	}
	return domain.BotIdentity{ID: bot.OpenID, Name: bot.AppName}, nil
}

func feishuError(err error) error {
	var apiErr *feishu.APIError
	if errors.As(err, &apiErr) {
		return &domain.PlatformError{Op: apiErr.Op, Code: apiErr.Code, Message: apiErr.Msg}
	}
	return &domain.PlatformError{Op: "feishu", Message: err.Error()}
}
