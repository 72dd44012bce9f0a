package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ZJUSCT/CFBingo/internal/config"
	"github.com/ZJUSCT/CFBingo/internal/contest"
	"github.com/ZJUSCT/CFBingo/internal/reconciler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncer struct {
	mu      sync.Mutex
	active  []string
	synced  []string
	settled int
	purged  int
	errs    map[string]error
}

func (f *fakeSyncer) ActiveMatchIDs(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.active...), nil
}

func (f *fakeSyncer) SyncRound2(_ context.Context, matchID, teamID string) (*contest.Round2Sync, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if teamID != "" {
		return nil, errors.New("poller must sync as the system")
	}
	f.synced = append(f.synced, matchID)
	if err := f.errs[matchID]; err != nil {
		return nil, err
	}
	return &contest.Round2Sync{Match: &reconciler.Result{MatchID: matchID}}, nil
}

func (f *fakeSyncer) SettleExpired(context.Context) (int, []string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled++
	return 0, nil, nil
}

func (f *fakeSyncer) PurgeRateLimits(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged++
	return 0, nil
}

func (f *fakeSyncer) syncedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.synced...)
}

func TestEnqueueDeduplicates(t *testing.T) {
	p := New(&fakeSyncer{}, config.Poller{})
	assert.True(t, p.Enqueue("m1"))
	assert.False(t, p.Enqueue("m1"))
	assert.True(t, p.Enqueue("m2"))

	p.Drain(context.Background())
	assert.True(t, p.Enqueue("m1"))
}

func TestTickQueuesActiveMatches(t *testing.T) {
	f := &fakeSyncer{
		active: []string{"m1", "m2"},
		errs:   map[string]error{"m2": contest.ErrMatchNotActive},
	}
	p := New(f, config.Poller{Interval: time.Hour})

	p.Tick(context.Background())
	p.Drain(context.Background())

	assert.Equal(t, []string{"m1", "m2"}, f.syncedIDs())
	assert.Equal(t, 1, f.settled)
	assert.Equal(t, 1, f.purged)
}

func TestRecover(t *testing.T) {
	f := &fakeSyncer{}
	p := New(f, config.Poller{})
	require.NoError(t, p.Recover(context.Background()))
	assert.Zero(t, f.settled)

	f.active = []string{"m1"}
	require.NoError(t, p.Recover(context.Background()))
	assert.Equal(t, 1, f.settled)
	assert.Equal(t, []string{"m1"}, f.syncedIDs())
}

func TestRunStopsOnCancel(t *testing.T) {
	f := &fakeSyncer{active: []string{"m1"}}
	p := New(f, config.Poller{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(f.syncedIDs()) >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
