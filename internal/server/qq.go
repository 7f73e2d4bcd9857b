package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
	"github.com/wechatter/qq-bot-bridge/internal/infra/qq"
)

const maxWebhookBody = 1 << 20

// MessageHandler handles one inbound message
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *domain.InboundMessage) error
}

// QQServer receives QQ webhook callbacks
type QQServer struct {
	signer  *qq.Signer
	handler MessageHandler
	addr    string
	logger  *slog.Logger
	seen    *seenCache

	server *http.Server
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQQServer creates a webhook server listening on addr. The app secret
// signs the callback verification answers.
func NewQQServer(appSecret, addr string, handler MessageHandler) (*QQServer, error) {
	signer, err := qq.NewSigner(appSecret)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &QQServer{
		signer:  signer,
		handler: handler,
		addr:    addr,
		logger:  slog.Default().With("component", "qq-webhook"),
		seen:    newSeenCache(5 * time.Minute),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Handler returns the webhook HTTP handler
func (s *QQServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/qq/callback", s.handleCallback)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// Start serves webhook callbacks until Stop
func (s *QQServer) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting webhook server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down and waits for in-flight messages
func (s *QQServer) Stop() error {
	var err error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.server.Shutdown(ctx)
	}
	s.cancel()
	s.wg.Wait()
	return err
}

func (s *QQServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	sig, ts := r.Header.Get(qq.HeaderSignature), r.Header.Get(qq.HeaderTimestamp)
	if err := s.signer.Verify(sig, ts, body); err != nil {
		s.logger.Warn("rejected webhook call", "error", err)
		http.Error(w, "bad signature", http.StatusUnauthorized)
		return
	}

	var payload qq.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	switch payload.Op {
	case qq.OpCallbackVerify:
		resp, err := s.signer.AnswerVerify(&payload)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, resp)
		return

	case qq.OpDispatch:
		s.dispatch(&payload)
	}

	writeJSON(w, map[string]int{"op": qq.OpCallbackAck})
}

// dispatch converts a message event and hands it off; the callback
// answers before the handler runs
func (s *QQServer) dispatch(payload *qq.Payload) {
	if payload.Type != qq.EventGroupAt && payload.Type != qq.EventC2C && payload.Type != qq.EventDirect {
		s.logger.Debug("ignored event", "type", payload.Type)
		return
	}

	ev, err := qq.ParseMessageEvent(payload)
	if err != nil {
		s.logger.Warn("bad message event", "type", payload.Type, "error", err)
		return
	}
	if !s.seen.markNew(ev.ID) {
		s.logger.Debug("duplicate message ignored", "msg_id", ev.ID)
		return
	}

	msg := toInbound(payload.Type, ev)
	s.logger.Debug("message received", "kind", msg.Kind.String(), "target", msg.TargetID, "msg_id", msg.ID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.handler.HandleMessage(s.ctx, msg); err != nil {
			s.logger.Error("handle message failed", "msg_id", msg.ID, "error", err)
		}
	}()
}

// toInbound maps a QQ message event to an inbound message. The event's
// message id is the reply token for its surface.
func toInbound(eventType string, ev *qq.MessageEvent) *domain.InboundMessage {
	msg := &domain.InboundMessage{
		ID:         ev.ID,
		Content:    ev.Text(),
		CreateTime: ev.CreatedAt(),
	}
	if ev.Reference != nil {
		msg.QuotedID = ev.Reference.MessageID
	}

	switch eventType {
	case qq.EventGroupAt:
		msg.Kind = domain.SurfaceGroupReply
		msg.TargetID = ev.GroupOpenID
		msg.Group = &domain.GroupSnapshot{ID: ev.GroupOpenID}
		msg.SenderID = ev.Author.MemberOpenID
	case qq.EventC2C:
		msg.Kind = domain.SurfaceUserReply
		msg.TargetID = ev.Author.UserOpenID
		msg.SenderID = ev.Author.UserOpenID
	default:
		msg.Kind = domain.SurfaceDirectMessage
		msg.TargetID = ev.GuildID
		msg.SenderID = ev.Author.ID
		msg.SenderName = ev.Author.Username
	}
	return msg
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
