package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ZJUSCT/CFBingo/internal/config"
	"github.com/ZJUSCT/CFBingo/internal/contest"
	"go.uber.org/zap"
)

// Syncer is the part of the contest service the poller drives.
type Syncer interface {
	ActiveMatchIDs(ctx context.Context) ([]string, error)
	SyncRound2(ctx context.Context, matchID, teamID string) (*contest.Round2Sync, error)
	SettleExpired(ctx context.Context) (int, []string, error)
	PurgeRateLimits(ctx context.Context) (int64, error)
}

// Poller keeps active matches reconciled without waiting for teams to sync.
// Each tick settles expired matches and queues a sync for every active one; a
// single worker drains the queue so matches are never synced concurrently by
// the poller.
type Poller struct {
	svc      Syncer
	interval time.Duration
	queue    chan string

	mu      sync.Mutex
	pending map[string]bool
}

func New(svc Syncer, cfg config.Poller) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		svc:      svc,
		interval: interval,
		queue:    make(chan string, 64),
		pending:  make(map[string]bool),
	}
}

// Enqueue schedules a sync of the match. It reports false when the match is
// already queued or the queue is full.
func (p *Poller) Enqueue(matchID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending[matchID] {
		return false
	}
	select {
	case p.queue <- matchID:
		p.pending[matchID] = true
		return true
	default:
		zap.S().Warnf("poller queue full, dropping sync of match %s", matchID)
		return false
	}
}

func (p *Poller) done(matchID string) {
	p.mu.Lock()
	delete(p.pending, matchID)
	p.mu.Unlock()
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	zap.S().Infof("poller started, interval %s", p.interval)
	p.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			zap.S().Info("poller stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		case id := <-p.queue:
			p.process(ctx, id)
		}
	}
}

// Tick settles expired matches, purges stale counters and queues every active
// match.
func (p *Poller) Tick(ctx context.Context) {
	completed, tied, err := p.svc.SettleExpired(ctx)
	if err != nil {
		zap.S().Errorf("failed to settle expired matches: %v", err)
	}
	if completed > 0 {
		zap.S().Infof("settled %d expired matches", completed)
	}
	for _, id := range tied {
		zap.S().Warnf("match %s ended in a tie and needs manual resolution", id)
	}

	if n, err := p.svc.PurgeRateLimits(ctx); err != nil {
		zap.S().Warnf("failed to purge rate limit counters: %v", err)
	} else if n > 0 {
		zap.S().Debugf("purged %d rate limit counters", n)
	}

	ids, err := p.svc.ActiveMatchIDs(ctx)
	if err != nil {
		zap.S().Errorf("failed to list active matches: %v", err)
		return
	}
	for _, id := range ids {
		p.Enqueue(id)
	}
}

// Drain processes every queued sync and returns. It is used on startup and in
// tests.
func (p *Poller) Drain(ctx context.Context) {
	for {
		select {
		case id := <-p.queue:
			p.process(ctx, id)
		default:
			return
		}
	}
}

func (p *Poller) process(ctx context.Context, matchID string) {
	defer p.done(matchID)

	res, err := p.svc.SyncRound2(ctx, matchID, "")
	switch {
	case err == nil:
		for _, w := range res.Warnings {
			zap.S().Warnf("match %s sync: %s", matchID, w)
		}
		if res.Match != nil && res.Match.Completed {
			zap.S().Infof("match %s completed by poller", matchID)
		}
	case errors.Is(err, contest.ErrMatchNotActive), errors.Is(err, contest.ErrNotFound):
		zap.S().Debugf("skipping match %s: %v", matchID, err)
	default:
		zap.S().Errorf("failed to sync match %s: %v", matchID, err)
	}
}
