package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
	"github.com/wechatter/qq-bot-bridge/internal/biz/repo"
)

// DispatchConfig contains delivery configuration
type DispatchConfig struct {
	Token         domain.TokenConfig
	MaxRetry      int           // total send attempts per request
	IdleDelay     time.Duration // wait after a cycle that found nothing
	BusyDelay     time.Duration // wait after a cycle that processed something
	SweepInterval time.Duration // minimum time between token sweeps
	SendTimeout   time.Duration // per platform call
	RecordTimeout time.Duration // per message store write
	InboxSize     int           // buffered producer events
}

// DefaultDispatchConfig returns default delivery configuration
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		Token:         domain.DefaultTokenConfig(),
		MaxRetry:      3,
		IdleDelay:     1000 * time.Millisecond,
		BusyDelay:     100 * time.Millisecond,
		SweepInterval: 120 * time.Second,
		SendTimeout:   10 * time.Second,
		RecordTimeout: 5 * time.Second,
		InboxSize:     256,
	}
}

// LoopState is the observable state of the dispatch loop
type LoopState int32

const (
	LoopIdle LoopState = iota
	LoopDraining
)

func (s LoopState) String() string {
	if s == LoopDraining {
		return "draining"
	}
	return "idle"
}

// DispatchStats are cumulative delivery counters
type DispatchStats struct {
	Sent            uint64 `json:"sent"`
	Deferred        uint64 `json:"deferred"`
	Retried         uint64 `json:"retried"`
	Dropped         uint64 `json:"dropped"`
	RecordFailures  uint64 `json:"record_failures"`
	TokensSwept     uint64 `json:"tokens_swept"`
	FreshTokens     uint64 `json:"fresh_tokens"`
	DeferredDrained uint64 `json:"deferred_drained"`
}

// DispatchStatus is a point-in-time view of the dispatcher
type DispatchStatus struct {
	State    string         `json:"state"`
	Queues   map[string]int `json:"queues"`
	Deferred map[string]int `json:"deferred"`
	Tokens   int            `json:"tokens"`
	Stats    DispatchStats  `json:"stats"`
}

// dispatchEvent is a producer message to the loop. Exactly one field is set.
type dispatchEvent struct {
	send  *domain.SendRequest
	fresh *freshToken
}

type freshToken struct {
	kind  domain.SurfaceKind
	token string
}

// Dispatcher is the single delivery loop. It owns the platform client, the
// channel queues, the deferred buffers and the token tracker. Producers talk to
// it only through EnqueueSend and NotifyFreshToken.
type Dispatcher struct {
	platform repo.PlatformRepo
	recorder *SendResultRecorder
	cfg      DispatchConfig
	logger   *slog.Logger
	now      func() time.Time

	inbox chan dispatchEvent
	done  chan struct{}

	// Owned by the loop goroutine
	tokens    *TokenTracker
	queues    [domain.NumSurfaceKinds]*ChannelQueue
	deferred  [domain.NumSurfaceKinds]*DeferredBuffer
	lastSweep time.Time

	// Published for readers outside the loop
	state         atomic.Int32
	queueDepth    [domain.NumSurfaceKinds]atomic.Int64
	deferredDepth [domain.NumSurfaceKinds]atomic.Int64
	tokenCount    atomic.Int64
	stats         struct {
		sent, deferred, retried, dropped, recordFailures atomic.Uint64
		swept, fresh, drained                            atomic.Uint64
	}

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewDispatcher creates a dispatcher. recorder may be nil.
func NewDispatcher(platform repo.PlatformRepo, recorder *SendResultRecorder, cfg DispatchConfig) *Dispatcher {
	def := DefaultDispatchConfig()
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = def.MaxRetry
	}
	if cfg.Token.MaxReplies <= 0 {
		cfg.Token.MaxReplies = def.Token.MaxReplies
	}
	if cfg.Token.Expiry <= 0 {
		cfg.Token.Expiry = def.Token.Expiry
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = def.IdleDelay
	}
	if cfg.BusyDelay <= 0 {
		cfg.BusyDelay = def.BusyDelay
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = def.RecordTimeout
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = def.InboxSize
	}

	d := &Dispatcher{
		platform: platform,
		recorder: recorder,
		cfg:      cfg,
		logger:   slog.Default().With("component", "dispatch"),
		now:      time.Now,
		inbox:    make(chan dispatchEvent, cfg.InboxSize),
		done:     make(chan struct{}),
	}
	d.tokens = NewTokenTracker(cfg.Token, func() time.Time { return d.now() })
	for _, kind := range domain.SurfaceKinds {
		d.queues[kind] = NewChannelQueue(kind)
		d.deferred[kind] = NewDeferredBuffer(kind)
	}
	d.lastSweep = d.now()
	return d
}

// Config returns the effective configuration
func (d *Dispatcher) Config() DispatchConfig {
	return d.cfg
}

// Start starts the dispatch loop
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		ctx, d.cancel = context.WithCancel(ctx)
		d.wg.Add(1)
		go d.run(ctx)
		d.logger.Info("dispatch loop started",
			"idle_delay", d.cfg.IdleDelay,
			"busy_delay", d.cfg.BusyDelay,
			"max_retry", d.cfg.MaxRetry,
			"max_replies_per_token", d.cfg.Token.MaxReplies)
	})
}

// Stop stops the dispatch loop and waits for the in-flight send to finish.
// Requests still queued are discarded.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		if d.cancel != nil {
			d.cancel()
		}
		d.wg.Wait()
		d.logger.Info("dispatch loop stopped", "pending", d.pending())
	})
}

// EnqueueSend submits an outbound message. replyToken is the id of the
// inbound message being answered, or empty for a proactive send. It returns
// the request id used in logs.
func (d *Dispatcher) EnqueueSend(ctx context.Context, target domain.TargetRef, content, replyToken string, isMedia bool) (string, error) {
	if err := target.Validate(); err != nil {
		return "", err
	}
	if content == "" {
		return "", errors.New("content is required")
	}

	req := &domain.SendRequest{
		ID:         uuid.NewString(),
		Content:    content,
		Target:     target,
		ReplyToken: replyToken,
		IsMedia:    isMedia,
		EnqueuedAt: d.now(),
	}
	if err := d.post(ctx, dispatchEvent{send: req}); err != nil {
		return "", err
	}
	return req.ID, nil
}

// NotifyFreshToken announces a reply token granted by a new inbound message
func (d *Dispatcher) NotifyFreshToken(ctx context.Context, kind domain.SurfaceKind, token string) error {
	if !kind.Valid() {
		return fmt.Errorf("invalid surface kind %d", int(kind))
	}
	if token == "" {
		return errors.New("token is required")
	}
	return d.post(ctx, dispatchEvent{fresh: &freshToken{kind: kind, token: token}})
}

func (d *Dispatcher) post(ctx context.Context, ev dispatchEvent) error {
	select {
	case <-d.done:
		return domain.ErrDispatcherStopped
	default:
	}
	select {
	case d.inbox <- ev:
		return nil
	case <-d.done:
		return domain.ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot for monitoring
func (d *Dispatcher) Status() DispatchStatus {
	status := DispatchStatus{
		State:    LoopState(d.state.Load()).String(),
		Queues:   make(map[string]int, domain.NumSurfaceKinds),
		Deferred: make(map[string]int, domain.NumSurfaceKinds),
		Tokens:   int(d.tokenCount.Load()),
		Stats: DispatchStats{
			Sent:            d.stats.sent.Load(),
			Deferred:        d.stats.deferred.Load(),
			Retried:         d.stats.retried.Load(),
			Dropped:         d.stats.dropped.Load(),
			RecordFailures:  d.stats.recordFailures.Load(),
			TokensSwept:     d.stats.swept.Load(),
			FreshTokens:     d.stats.fresh.Load(),
			DeferredDrained: d.stats.drained.Load(),
		},
	}
	for _, kind := range domain.SurfaceKinds {
		status.Queues[kind.String()] = int(d.queueDepth[kind].Load())
		status.Deferred[kind.String()] = int(d.deferredDepth[kind].Load())
	}
	return status
}

// State returns the current loop state
func (d *Dispatcher) State() LoopState {
	return LoopState(d.state.Load())
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	defer close(d.done)

	idle := time.NewTimer(d.cfg.IdleDelay)
	defer idle.Stop()

	for {
		processed := d.cycle(ctx)
		if ctx.Err() != nil {
			return
		}

		if processed > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.cfg.BusyDelay):
			}
			continue
		}

		// Idle: a producer event ends the wait early
		idle.Reset(d.cfg.IdleDelay)
		select {
		case <-ctx.Done():
			return
		case ev := <-d.inbox:
			d.apply(ev)
			idle.Stop()
		case <-idle.C:
		}
	}
}

// cycle runs one round-robin pass: producer events are applied, then at most
// one request per surface kind is processed. It returns how many requests
// were taken off the queues.
func (d *Dispatcher) cycle(ctx context.Context) int {
	d.drainInbox()

	processed := 0
	for _, kind := range domain.SurfaceKinds {
		req := d.queues[kind].Pop()
		if req == nil {
			continue
		}
		d.state.Store(int32(LoopDraining))
		processed++
		d.process(ctx, kind, req)
	}

	d.maybeSweep()
	if processed == 0 {
		d.state.Store(int32(LoopIdle))
	}
	d.publish()
	return processed
}

func (d *Dispatcher) drainInbox() {
	for {
		select {
		case ev := <-d.inbox:
			d.apply(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) apply(ev dispatchEvent) {
	switch {
	case ev.send != nil:
		req := ev.send
		kind := req.Target.Kind
		d.queues[kind].Push(req)
		d.logger.Debug("request queued",
			"id", req.ID, "kind", kind, "target", req.Target.ID(), "token", req.ReplyToken)

	case ev.fresh != nil:
		kind, token := ev.fresh.kind, ev.fresh.token
		d.tokens.Fresh(kind, token)
		d.stats.fresh.Add(1)

		released := d.deferred[kind].Drain(d.cfg.Token.MaxReplies)
		for _, req := range released {
			d.queues[kind].Push(req)
		}
		if len(released) > 0 {
			d.stats.drained.Add(uint64(len(released)))
			d.logger.Info("deferred requests released",
				"kind", kind, "token", token, "count", len(released), "remaining", d.deferred[kind].Len())
		}
	}
	d.publish()
}

// process handles one request taken off the queue of kind
func (d *Dispatcher) process(ctx context.Context, kind domain.SurfaceKind, req *domain.SendRequest) {
	token := req.ReplyToken
	if token == "" {
		latest, ok := d.tokens.Latest(kind)
		if !ok {
			d.deferRequest(kind, req, domain.ErrTokenUnknown)
			return
		}
		token = latest
	} else if err := d.tokens.Check(token); err != nil {
		d.deferRequest(kind, req, err)
		return
	}

	seq := d.tokens.NextSequence(token)
	result, err := d.send(ctx, req, token, seq)
	if err != nil {
		d.handleFailure(kind, req, token, seq, err)
		return
	}

	d.stats.sent.Add(1)
	d.logger.Info("message sent",
		"id", req.ID, "kind", kind, "target", req.Target.ID(),
		"token", token, "seq", seq, "retry", req.RetryCount, "platform_msg_id", result.MessageID)

	if d.recorder != nil {
		recordCtx, cancel := context.WithTimeout(ctx, d.cfg.RecordTimeout)
		err := d.recorder.Record(recordCtx, req, result)
		cancel()
		if err != nil {
			d.stats.recordFailures.Add(1)
			d.logger.Error("failed to record sent message", "id", req.ID, "error", err)
		}
	}
}

// send performs the platform call. A panic in the platform adapter is
// reported as a transport failure.
func (d *Dispatcher) send(ctx context.Context, req *domain.SendRequest, token string, seq int) (result *domain.SendResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: panic: %v", domain.ErrTransport, r)
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	t := req.Target
	switch t.Kind {
	case domain.SurfaceDirectMessage:
		result, err = d.platform.SendDirectMessage(sendCtx, req.Content, t.ConversationID, token, req.IsMedia)
	case domain.SurfaceGroupReply:
		result, err = d.platform.SendGroupReply(sendCtx, req.Content, t.GroupID, token, seq, req.IsMedia)
	case domain.SurfaceUserReply:
		result, err = d.platform.SendUserReply(sendCtx, req.Content, t.UserID, token, seq, req.IsMedia)
	default:
		err = fmt.Errorf("unsupported target kind %d", int(t.Kind))
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &domain.SendResult{}
	}
	return result, nil
}

func (d *Dispatcher) deferRequest(kind domain.SurfaceKind, req *domain.SendRequest, reason error) {
	d.deferred[kind].Push(req)
	d.stats.deferred.Add(1)
	d.logger.Info("request deferred",
		"id", req.ID, "kind", kind, "target", req.Target.ID(),
		"reason", reason, "buffered", d.deferred[kind].Len())
}

// handleFailure re-queues req at the tail of its queue until it has used up
// its attempts
func (d *Dispatcher) handleFailure(kind domain.SurfaceKind, req *domain.SendRequest, token string, seq int, err error) {
	req.RetryCount++
	req.LastError = err.Error()

	if req.RetryCount >= d.cfg.MaxRetry {
		d.stats.dropped.Add(1)
		d.logger.Error("message dropped after retries",
			"id", req.ID, "kind", kind, "target", req.Target.ID(),
			"token", token, "seq", seq, "attempts", req.RetryCount, "error", err)
		return
	}

	d.stats.retried.Add(1)
	d.queues[kind].Push(req)
	d.logger.Warn("send failed, will retry",
		"id", req.ID, "kind", kind, "target", req.Target.ID(),
		"token", token, "seq", seq, "attempt", req.RetryCount, "error", err)
}

func (d *Dispatcher) maybeSweep() {
	now := d.now()
	if now.Sub(d.lastSweep) < d.cfg.SweepInterval {
		return
	}
	d.lastSweep = now
	if removed := d.tokens.SweepExpired(); removed > 0 {
		d.stats.swept.Add(uint64(removed))
		d.logger.Debug("expired tokens swept", "count", removed, "remaining", d.tokens.Len())
	}
}

func (d *Dispatcher) publish() {
	for _, kind := range domain.SurfaceKinds {
		d.queueDepth[kind].Store(int64(d.queues[kind].Len()))
		d.deferredDepth[kind].Store(int64(d.deferred[kind].Len()))
	}
	d.tokenCount.Store(int64(d.tokens.Len()))
}

func (d *Dispatcher) pending() int {
	total := 0
	for _, kind := range domain.SurfaceKinds {
		total += int(d.queueDepth[kind].Load() + d.deferredDepth[kind].Load())
	}
	return total
}
