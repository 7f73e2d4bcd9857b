package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
	"github.com/wechatter/qq-bot-bridge/internal/biz/repo"
	"github.com/wechatter/qq-bot-bridge/internal/infra/qq"
)

// qqRepo implements the Platform repository on the QQ bot OpenAPI
type qqRepo struct {
	client *qq.Client
}

// NewQQRepo creates a new QQ platform repository
func NewQQRepo(client *qq.Client) repo.PlatformRepo {
	return &qqRepo{client: client}
}

// SendDirectMessage sends to a guild direct-message session.
// Media content is sent as the image url of the message.
func (r *qqRepo) SendDirectMessage(ctx context.Context, content, conversationID, token string, isMedia bool) (*domain.SendResult, error) {
	text, image := content, ""
	if isMedia {
		text, image = "", content
	}
	resp, err := r.client.PostDirectMessage(ctx, conversationID, text, token, image)
	if err != nil {
		return nil, platformError("post_dms", err)
	}
	return &domain.SendResult{MessageID: resp.ID}, nil
}

// SendGroupReply sends to a group, replying to token when set
func (r *qqRepo) SendGroupReply(ctx context.Context, content, groupID, token string, seq int, isMedia bool) (*domain.SendResult, error) {
	msg, err := r.buildMessage(ctx, content, token, seq, isMedia, func(ctx context.Context, url string) (*qq.Media, error) {
		return r.client.UploadGroupMedia(ctx, groupID, qq.FileTypeImage, url)
	})
	if err != nil {
		return nil, err
	}
	resp, err := r.client.PostGroupMessage(ctx, groupID, msg)
	if err != nil {
		return nil, platformError("post_group_message", err)
	}
	return &domain.SendResult{MessageID: resp.ID}, nil
}

// SendUserReply sends to a one-to-one chat, replying to token when set
func (r *qqRepo) SendUserReply(ctx context.Context, content, userID, token string, seq int, isMedia bool) (*domain.SendResult, error) {
	msg, err := r.buildMessage(ctx, content, token, seq, isMedia, func(ctx context.Context, url string) (*qq.Media, error) {
		return r.client.UploadC2CMedia(ctx, userID, qq.FileTypeImage, url)
	})
	if err != nil {
		return nil, err
	}
	resp, err := r.client.PostC2CMessage(ctx, userID, msg)
	if err != nil {
		return nil, platformError("post_c2c_message", err)
	}
	return &domain.SendResult{MessageID: resp.ID}, nil
}

type uploadFunc func(ctx context.Context, url string) (*qq.Media, error)

// buildMessage builds a v2 message body. Media is uploaded first and sent
// with a single space as text, which the API requires.
func (r *qqRepo) buildMessage(ctx context.Context, content, token string, seq int, isMedia bool, upload uploadFunc) (*qq.V2Message, error) {
	msg := &qq.V2Message{Content: content, MsgType: qq.MsgTypeText}
	if token != "" {
		msg.MsgID = token
		msg.MsgSeq = seq
	}
	if !isMedia {
		return msg, nil
	}
	media, err := upload(ctx, content)
	if err != nil {
		return nil, platformError("upload_media", err)
	}
	msg.Content = " "
	msg.MsgType = qq.MsgTypeMedia
	msg.Media = media
	return msg, nil
}

// Identity returns the bot account
func (r *qqRepo) Identity(ctx context.Context) (domain.BotIdentity, error) {
	me, err := r.client.Me(ctx)
	if err != nil {
		return domain.BotIdentity{}, platformError("get_me", err)
	}
	return domain.BotIdentity{ID: me.ID, Name: me.Username}, nil
}

// platformError maps client errors to domain.PlatformError
func platformError(op string, err error) error {
	var apiErr *qq.APIError
	if errors.As(err, &apiErr) {
		return &domain.PlatformError{Op: apiErr.Op, Status: apiErr.Status, Code: apiErr.Code, Message: apiErr.Message}
	}
	return &domain.PlatformError{Op: op, Message: fmt.Sprint(err)}
}
