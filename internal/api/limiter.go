package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// maxTrackedClients caps the number of buckets held at once
	maxTrackedClients = 1024

	// limiterIdleTTL is how long an unused bucket is kept
	limiterIdleTTL = 10 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool holds one token bucket per client. Idle buckets are pruned
// when the pool reaches its cap.
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*limiterEntry
	rps   float64
	burst int
	now   func() time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if burst <= 0 {
		burst = 10
	}
	return &limiterPool{m: make(map[string]*limiterEntry), rps: rps, burst: burst, now: time.Now}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if e, ok := p.m[key]; ok {
		e.lastSeen = now
		return e.limiter
	}

	if len(p.m) >= maxTrackedClients {
		p.prune(now)
	}
	e := &limiterEntry{limiter: rate.NewLimiter(rate.Limit(p.rps), p.burst), lastSeen: now}
	p.m[key] = e
	return e.limiter
}

// prune drops idle buckets, then the oldest ones while still at the cap
func (p *limiterPool) prune(now time.Time) {
	for k, e := range p.m {
		if now.Sub(e.lastSeen) >= limiterIdleTTL {
			delete(p.m, k)
		}
	}
	for len(p.m) >= maxTrackedClients {
		var oldest string
		var oldestSeen time.Time
		for k, e := range p.m {
			if oldest == "" || e.lastSeen.Before(oldestSeen) {
				oldest, oldestSeen = k, e.lastSeen
			}
		}
		delete(p.m, oldest)
	}
}

// Allow reports whether key may make a request now
func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

// Len returns the number of tracked buckets
func (p *limiterPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}
