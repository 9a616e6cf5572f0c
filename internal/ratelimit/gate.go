package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jakobbotsch/krakengo/internal/telemetry"
)

var ErrInvalidConfiguration = errors.New("invalid rate gate configuration")

// Gate bounds how many operations may start within a rolling period.
// Every acquired unit goes back to the pool exactly period after it was
// taken, so the gate behaves like a sliding window rather than a bucket
// that refills all at once.
//
// A nil *Gate admits everything immediately.
type Gate struct {
	name        string
	occurrences int
	period      time.Duration
	sem         *semaphore.Weighted
	outstanding atomic.Int64
}

func NewGate(name string, occurrences int, period time.Duration) (*Gate, error) {
	if occurrences <= 0 {
		return nil, fmt.Errorf("%w: %s occurrences must be > 0, got %d", ErrInvalidConfiguration, name, occurrences)
	}
	if period <= 0 {
		return nil, fmt.Errorf("%w: %s period must be > 0, got %s", ErrInvalidConfiguration, name, period)
	}
	return &Gate{
		name:        name,
		occurrences: occurrences,
		period:      period,
		sem:         semaphore.NewWeighted(int64(occurrences)),
	}, nil
}

// NewOptionalGate returns a nil (disabled) gate when occurrences is zero.
func NewOptionalGate(name string, occurrences int, period time.Duration) (*Gate, error) {
	if occurrences == 0 {
		return nil, nil
	}
	return NewGate(name, occurrences, period)
}

func (g *Gate) Occurrences() int      { return g.occurrences }
func (g *Gate) Period() time.Duration { return g.period }

// Outstanding reports how many units are currently consumed.
func (g *Gate) Outstanding() int {
	if g == nil {
		return 0
	}
	return int(g.outstanding.Load())
}

// Acquire blocks until count units have been consumed. Units are taken one
// at a time, so a multi-unit request can interleave with other callers.
// It only fails when ctx is done; units taken before that stay consumed.
func (g *Gate) Acquire(ctx context.Context, count int) error {
	if g == nil || count <= 0 {
		return nil
	}

	start := time.Now()
	defer func() { telemetry.Metrics.GateWait.Record(time.Since(start)) }()

	for i := 0; i < count; i++ {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("%s gate: %w", g.name, err)
		}
		g.hold()
	}
	return nil
}

// TryAcquireWithin waits at most timeout for a single unit and reports
// whether it was obtained.
func (g *Gate) TryAcquireWithin(timeout time.Duration) bool {
	if g == nil {
		return true
	}
	if g.sem.TryAcquire(1) {
		g.hold()
		return true
	}
	if timeout <= 0 {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	g.hold()
	return true
}

func (g *Gate) hold() {
	g.outstanding.Add(1)
	time.AfterFunc(g.period, func() {
		g.outstanding.Add(-1)
		g.sem.Release(1)
	})
}
