package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/ZJUSCT/CFBingo/internal/config"
	"github.com/ZJUSCT/CFBingo/internal/database"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Store is a fixed-window counter kept in the database, so every instance
// sharing the database enforces the same limit.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock replaces the clock used to pick the current window.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Allow counts one request for scope and reports whether it fits in the
// current window. A zero limit disables the check.
func (s *Store) Allow(ctx context.Context, scope string, w config.Window) (bool, error) {
	if w.Limit <= 0 || w.Window <= 0 {
		return true, nil
	}
	start := s.now().UTC().Truncate(w.Window)
	hits, err := database.IncrementRateLimit(s.db.WithContext(ctx), scope, start, w.Window)
	if err != nil {
		return false, err
	}
	return hits <= w.Limit, nil
}

// Purge deletes counters whose window has closed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	return database.PurgeExpiredRateLimits(s.db.WithContext(ctx), s.now().UTC())
}

const (
	cleanupThreshold = 1024
	maxIdleAge       = 10 * time.Minute
)

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPLimiter hands out a token bucket per client IP, pruning idle ones once
// the table grows past cleanupThreshold.
type IPLimiter struct {
	mu  sync.Mutex
	ips map[string]*ipEntry
	r   rate.Limit
	b   int
}

func NewIPLimiter(r rate.Limit, b int) *IPLimiter {
	return &IPLimiter{
		ips: make(map[string]*ipEntry),
		r:   r,
		b:   b,
	}
}

func (l *IPLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if len(l.ips) > cleanupThreshold {
		cutoff := now.Add(-maxIdleAge)
		for k, e := range l.ips {
			if e.lastSeen.Before(cutoff) {
				delete(l.ips, k)
			}
		}
	}

	e, ok := l.ips[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(l.r, l.b)}
		l.ips[ip] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}

// NewBucketLimiter builds an IPLimiter from configuration. A zero rate
// disables limiting.
func NewBucketLimiter(cfg config.Bucket) *IPLimiter {
	if cfg.PerMinute <= 0 {
		return NewIPLimiter(rate.Inf, 1)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return NewIPLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), burst)
}
