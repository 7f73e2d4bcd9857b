package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
	"github.com/wechatter/qq-bot-bridge/internal/infra/feishu"
)

// feishuSource is the part of the Feishu client the server uses
type feishuSource interface {
	OnMessage(handler feishu.MessageHandler)
	Start(ctx context.Context) error
	GetChatInfo(ctx context.Context, chatID string) (*feishu.ChatInfo, error)
}

// FeishuServer receives Feishu messages over the event websocket
type FeishuServer struct {
	client  feishuSource
	handler MessageHandler
	logger  *slog.Logger
	seen    *seenCache

	ctx    context.Context
	cancel context.CancelFunc
}

// NewFeishuServer creates a new Feishu server
func NewFeishuServer(client *feishu.Client, handler MessageHandler) *FeishuServer {
	return newFeishuServer(client, handler)
}

func newFeishuServer(client feishuSource, handler MessageHandler) *FeishuServer {
	ctx, cancel := context.WithCancel(context.Background())
	return &FeishuServer{
		client:  client,
		handler: handler,
		logger:  slog.Default().With("component", "feishu-server"),
		seen:    newSeenCache(5 * time.Minute),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start blocks until Stop
func (s *FeishuServer) Start() error {
	s.client.OnMessage(s.handleMessage)
	return s.client.Start(s.ctx)
}

// Stop stops the server
func (s *FeishuServer) Stop() {
	s.cancel()
}

// handleMessage runs on its own goroutine per event
func (s *FeishuServer) handleMessage(msg *feishu.Message) {
	if !s.seen.markNew(msg.MsgID) {
		s.logger.Debug("duplicate message ignored", "msg_id", msg.MsgID)
		return
	}

	in := s.toInbound(s.ctx, msg)
	s.logger.Debug("message received",
		"kind", in.Kind.String(), "target", in.TargetID, "msg_id", in.ID, "content", truncate(in.Content, 50))

	if err := s.handler.HandleMessage(s.ctx, in); err != nil {
		s.logger.Error("handle message failed", "msg_id", in.ID, "error", err)
	}
}

// toInbound maps a Feishu message to an inbound message. Both chat types
// are addressed by chat id.
func (s *FeishuServer) toInbound(ctx context.Context, msg *feishu.Message) *domain.InboundMessage {
	in := &domain.InboundMessage{
		ID:         msg.MsgID,
		Kind:       domain.SurfaceUserReply,
		TargetID:   msg.ChatID,
		Content:    msg.Content,
		QuotedID:   msg.ParentID,
		CreateTime: msg.CreateTime,
	}
	if msg.Sender != nil {
		in.SenderID = msg.Sender.SenderID
	}

	if msg.IsGroup() {
		in.Kind = domain.SurfaceGroupReply
		in.Group = &domain.GroupSnapshot{ID: msg.ChatID}
		if info, err := s.client.GetChatInfo(ctx, msg.ChatID); err == nil {
			in.Group.Name = info.Name
			in.Group.MemberCount = info.MemberCount
		} else {
			s.logger.Warn("failed to get chat info", "chat_id", msg.ChatID, "error", err)
		}
	}
	return in
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
