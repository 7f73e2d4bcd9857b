package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
	"github.com/wechatter/qq-bot-bridge/internal/biz/repo"
	"github.com/wechatter/qq-bot-bridge/internal/biz/usecase"
)

// Dispatcher is the delivery loop as seen by the API
type Dispatcher interface {
	EnqueueSend(ctx context.Context, target domain.TargetRef, content, replyToken string, isMedia bool) (string, error)
	NotifyFreshToken(ctx context.Context, kind domain.SurfaceKind, token string) error
	Status() usecase.DispatchStatus
}

// Server provides the local HTTP API that tools and scripts use to produce
// outbound messages
type Server struct {
	dispatcher  Dispatcher
	messageRepo repo.MessageRepo
	limiter     *limiterPool
	logger      *slog.Logger

	server *http.Server
	port   int
}

// NewServer creates a new API server. A rateLimit of 0 disables per-client
// limiting.
func NewServer(dispatcher Dispatcher, messageRepo repo.MessageRepo, port int, rateLimit float64, rateBurst int) *Server {
	s := &Server{
		dispatcher:  dispatcher,
		messageRepo: messageRepo,
		logger:      slog.Default().With("component", "api"),
		port:        port,
	}
	if rateLimit > 0 {
		s.limiter = newLimiterPool(rateLimit, rateBurst)
	}
	return s
}

// Handler returns the API routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/send", s.limit(s.handleSend))
	mux.HandleFunc("/api/token", s.limit(s.handleToken))
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/messages", s.handleMessages)

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting HTTP server", "port", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// GetPort returns the server port
func (s *Server) GetPort() int {
	return s.port
}

// SendRequest is the body of POST /api/send
type SendRequest struct {
	Kind       string `json:"kind"`
	Target     string `json:"target"`
	GroupName  string `json:"group_name,omitempty"`
	Content    string `json:"content"`
	ReplyToken string `json:"reply_token,omitempty"`
	IsMedia    bool   `json:"is_media,omitempty"`
}

// SendResponse is the answer to POST /api/send
type SendResponse struct {
	RequestID string `json:"request_id"`
}

// TokenRequest is the body of POST /api/token
type TokenRequest struct {
	Kind  string `json:"kind"`
	Token string `json:"token"`
}

// ============ Delivery Handlers ============

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}

	target, err := buildTarget(req.Kind, req.Target, req.GroupName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.dispatcher.EnqueueSend(r.Context(), target, req.Content, req.ReplyToken, req.IsMedia)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Debug("send enqueued", "request_id", id, "target", target.String())
	s.writeJSON(w, SendResponse{RequestID: id})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind, err := domain.ParseSurfaceKind(req.Kind)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}

	if err := s.dispatcher.NotifyFreshToken(r.Context(), kind, req.Token); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, map[string]interface{}{"success": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.dispatcher.Status())
}

// ============ Message Handlers ============

// MessageView is a stored message as returned by GET /api/messages
type MessageView struct {
	ID         string    `json:"id,omitempty"`
	Kind       string    `json:"kind"`
	TargetID   string    `json:"target"`
	GroupName  string    `json:"group_name,omitempty"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name,omitempty"`
	Content    string    `json:"content"`
	IsMedia    bool      `json:"is_media,omitempty"`
	IsBot      bool      `json:"is_bot"`
	CreateTime time.Time `json:"create_time"`
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.messageRepo == nil {
		http.Error(w, "message store not initialized", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	kind, err := domain.ParseSurfaceKind(q.Get("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	target := q.Get("target")
	if target == "" {
		http.Error(w, "target is required", http.StatusBadRequest)
		return
	}

	limit := 20
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	messages, err := s.messageRepo.ListRecent(r.Context(), kind, target, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	views := make([]MessageView, len(messages))
	for i, m := range messages {
		views[i] = MessageView{
			ID:         m.ID,
			Kind:       m.Kind.String(),
			TargetID:   m.TargetID,
			GroupName:  m.GroupName,
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Content:    m.Content,
			IsMedia:    m.IsMedia,
			IsBot:      m.IsBot,
			CreateTime: m.CreateTime,
		}
	}
	s.writeJSON(w, map[string]interface{}{"messages": views})
}

// ============ Helpers ============

func buildTarget(kindName, id, groupName string) (domain.TargetRef, error) {
	kind, err := domain.ParseSurfaceKind(kindName)
	if err != nil {
		return domain.TargetRef{}, err
	}

	var target domain.TargetRef
	switch kind {
	case domain.SurfaceGroupReply:
		var group *domain.GroupSnapshot
		if groupName != "" {
			group = &domain.GroupSnapshot{ID: id, Name: groupName}
		}
		target = domain.GroupTarget(id, group)
	case domain.SurfaceUserReply:
		target = domain.UserTarget(id)
	default:
		target = domain.DirectTarget(id)
	}
	return target, target.Validate()
}

// limit rejects callers over their per-client rate
func (s *Server) limit(next http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientKey(r)) {
			s.logger.Warn("rate limit exceeded",
				"remote", r.RemoteAddr, "client", r.Header.Get("X-Client-ID"), "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// clientKey keys buckets by remote host. X-Client-ID is caller supplied and
// only used as a log label.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrDispatcherStopped):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusGatewayTimeout
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
