// Package ratelimit limits requests per client and route with token buckets from golang.org/x/time/rate.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Info describes the limit state after a request.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

type client struct {
	limiter  *rate.Limiter
	limit    int
	lastSeen time.Time
}

// Limiter tracks one token bucket per client, path and method.
type Limiter struct {
	config      *Config
	mu          sync.Mutex
	clients     map[string]*client
	now         func() time.Time
	cleanupStop chan struct{}
	stopOnce    sync.Once
}

// NewLimiter creates a limiter. A nil config gets 120 requests per minute with a burst of 20.
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = &Config{
			Enabled:           true,
			RequestsPerMinute: 120,
			Burst:             20,
			CleanupInterval:   5 * time.Minute,
			IdleTTL:           time.Hour,
		}
	}

	l := &Limiter{
		config:  cfg,
		clients: make(map[string]*client),
		now:     time.Now,
	}

	if cfg.Enabled && cfg.CleanupInterval > 0 {
		l.cleanupStop = make(chan struct{})
		go l.cleanup(cfg.CleanupInterval)
	}

	return l
}

// Allow reports whether a request from clientID to path may proceed, and consumes a token if so.
func (l *Limiter) Allow(clientID, path, method string) (bool, Info) {
	if !l.config.Enabled || l.config.Whitelist[clientID] {
		return true, Info{Allowed: true}
	}

	perMinute, burst := l.config.RequestsPerMinute, l.config.Burst
	if ep := MatchEndpoint(path, method, l.config.EndpointConfigs); ep != nil {
		perMinute, burst = ep.RequestsPerMinute, ep.Burst
	}
	if perMinute <= 0 {
		return true, Info{Allowed: true}
	}
	if burst <= 0 {
		burst = perMinute
	}

	now := l.now()
	c := l.clientFor(clientID+":"+path+":"+method, perMinute, burst, now)

	allowed := c.limiter.AllowN(now, 1)
	tokens := c.limiter.TokensAt(now)
	info := Info{
		Allowed:   allowed,
		Limit:     c.limit,
		Remaining: max(int(tokens), 0),
		ResetTime: now.Add(untilTokens(float64(burst)-tokens, c.limiter.Limit())),
	}
	if !allowed {
		info.RetryAfter = untilTokens(1-tokens, c.limiter.Limit())
	}
	return allowed, info
}

func (l *Limiter) clientFor(key string, perMinute, burst int, now time.Time) *client {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[key]
	if !ok {
		c = &client{
			limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60), burst),
			limit:   perMinute,
		}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c
}

func untilTokens(needed float64, r rate.Limit) time.Duration {
	if needed <= 0 || r <= 0 {
		return 0
	}
	return time.Duration(needed / float64(r) * float64(time.Second))
}

func (l *Limiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictIdle()
		case <-l.cleanupStop:
			return
		}
	}
}

// evictIdle drops clients that have been quiet for longer than IdleTTL.
func (l *Limiter) evictIdle() {
	ttl := l.config.IdleTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	cutoff := l.now().Add(-ttl)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
		}
	}
}

// Len returns the number of tracked client buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		if l.cleanupStop != nil {
			close(l.cleanupStop)
		}
	})
}
