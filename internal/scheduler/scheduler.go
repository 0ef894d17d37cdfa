// Package scheduler runs a job on a fixed interval.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// Job is one scheduled run. The tick time is passed in.
type Job func(ctx context.Context, tick time.Time)

// Ticker runs a job immediately on Start and then every interval. Runs never
// overlap: a tick that fires while the job is still running is dropped.
type Ticker struct {
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewTicker creates a scheduler for the given interval.
func NewTicker(interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Ticker{interval: interval}
}

// Interval returns the configured interval.
func (t *Ticker) Interval() time.Duration {
	return t.interval
}

// Start begins ticking in a goroutine. Calling Start on a running ticker is a no-op.
func (t *Ticker) Start(ctx context.Context, job Job) {
	if job == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	go t.loop(ctx, job, t.stop, t.done)
}

func (t *Ticker) loop(ctx context.Context, job Job, stop, done chan struct{}) {
	defer close(done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	job(ctx, time.Now())
	for {
		select {
		case tick := <-ticker.C:
			job(ctx, tick)
		case <-ctx.Done():
			return
		}
	}
}

// Stop halts the ticker and waits for a running job to return. The job's
// context is cancelled so it can stop between articles.
func (t *Ticker) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Wait blocks until the ticker stops, either through Stop or because the
// context passed to Start was cancelled.
func (t *Ticker) Wait() {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done != nil {
		<-done
	}
}
