package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/wechatter/qq-bot-bridge/internal/biz/domain"
	"github.com/wechatter/qq-bot-bridge/internal/biz/repo"
)

// ScheduledSend is a proactive message sent on a cron schedule
type ScheduledSend struct {
	Name     string
	Schedule string
	Target   domain.TargetRef
	Content  string
	IsMedia  bool
}

// Retention removes stored messages older than Keep on Schedule
type Retention struct {
	Schedule string
	Keep     time.Duration
}

type cronJob struct {
	name     string
	schedule string
	next     time.Time
	run      func(ctx context.Context) error
}

// CronRunner runs scheduled proactive sends and message cleanup
type CronRunner struct {
	outbox      Outbox
	messageRepo repo.MessageRepo
	logger      *slog.Logger
	now         func() time.Time

	jobs []*cronJob

	pollInterval time.Duration
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// NewCronRunner creates a new cron runner. messageRepo may be nil, in which
// case retention is skipped.
func NewCronRunner(outbox Outbox, messageRepo repo.MessageRepo, sends []ScheduledSend, retention Retention) (*CronRunner, error) {
	r := &CronRunner{
		outbox:       outbox,
		messageRepo:  messageRepo,
		logger:       slog.Default().With("component", "cron"),
		now:          time.Now,
		pollInterval: 30 * time.Second,
	}

	for _, s := range sends {
		if !gronx.IsValid(s.Schedule) {
			return nil, fmt.Errorf("task %s: invalid cron expression %q", s.Name, s.Schedule)
		}
		if err := s.Target.Validate(); err != nil {
			return nil, fmt.Errorf("task %s: %w", s.Name, err)
		}
		send := s
		r.jobs = append(r.jobs, &cronJob{
			name:     send.Name,
			schedule: send.Schedule,
			run: func(ctx context.Context) error {
				// no reply token, the dispatcher piggybacks or defers
				_, err := r.outbox.EnqueueSend(ctx, send.Target, send.Content, "", send.IsMedia)
				return err
			},
		})
	}

	if messageRepo != nil && retention.Schedule != "" && retention.Keep > 0 {
		if !gronx.IsValid(retention.Schedule) {
			return nil, fmt.Errorf("retention: invalid cron expression %q", retention.Schedule)
		}
		r.jobs = append(r.jobs, &cronJob{
			name:     "retention",
			schedule: retention.Schedule,
			run: func(ctx context.Context) error {
				removed, err := r.messageRepo.CleanupOld(ctx, r.now().Add(-retention.Keep))
				if err != nil {
					return err
				}
				r.logger.Info("old messages removed", "count", removed)
				return nil
			},
		})
	}
	return r, nil
}

// Start starts the cron runner
func (r *CronRunner) Start(ctx context.Context) {
	if r.cancel != nil || len(r.jobs) == 0 {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.schedule(r.now())

	r.wg.Add(1)
	go r.loop(ctx)
	r.logger.Info("started", "jobs", len(r.jobs), "poll_interval", r.pollInterval)
}

// Stop stops the cron runner
func (r *CronRunner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.cancel = nil
	r.logger.Info("stopped")
}

func (r *CronRunner) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runDue(ctx, r.now())
		case <-ctx.Done():
			return
		}
	}
}

// schedule computes the next run of every job after now
func (r *CronRunner) schedule(now time.Time) {
	for _, job := range r.jobs {
		r.reschedule(job, now)
	}
}

func (r *CronRunner) reschedule(job *cronJob, now time.Time) {
	next, err := gronx.NextTickAfter(job.schedule, now, false)
	if err != nil {
		r.logger.Error("next tick failed", "job", job.name, "error", err)
		job.next = time.Time{}
		return
	}
	job.next = next
}

// runDue runs every job whose next tick has passed and returns how many ran
func (r *CronRunner) runDue(ctx context.Context, now time.Time) int {
	ran := 0
	for _, job := range r.jobs {
		if job.next.IsZero() || now.Before(job.next) {
			continue
		}
		if err := job.run(ctx); err != nil {
			r.logger.Error("job failed", "job", job.name, "error", err)
		} else {
			r.logger.Debug("job ran", "job", job.name)
		}
		ran++
		r.reschedule(job, now)
	}
	return ran
}
