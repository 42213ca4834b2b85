package main

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"callparser/download"
	"callparser/lookup"

	"github.com/dustin/go-humanize"
)

const (
	refreshRetryBase = 1 * time.Minute
	refreshRetryMax  = 30 * time.Minute
)

// refreshState records the outcome of scheduled refreshes for the stats line.
type refreshState struct {
	lastSuccess  atomic.Int64
	lastFailure  atomic.Int64
	failureCount atomic.Int64
	lastError    atomic.Value
}

func newRefreshState() *refreshState {
	state := &refreshState{}
	state.lastError.Store("")
	return state
}

func (s *refreshState) recordSuccess(now time.Time) {
	if s == nil {
		return
	}
	s.lastSuccess.Store(now.Unix())
	s.failureCount.Store(0)
	s.lastError.Store("")
}

func (s *refreshState) recordFailure(now time.Time, err error) {
	if s == nil {
		return
	}
	s.lastFailure.Store(now.Unix())
	s.failureCount.Add(1)
	if err != nil {
		s.lastError.Store(err.Error())
	}
}

// lastSuccessAt reports the last successful refresh, if any.
func (s *refreshState) lastSuccessAt() (time.Time, bool) {
	if s == nil {
		return time.Time{}, false
	}
	ts := s.lastSuccess.Load()
	if ts <= 0 {
		return time.Time{}, false
	}
	return time.Unix(ts, 0).UTC(), true
}

func (s *refreshState) failures() (int64, string) {
	if s == nil {
		return 0, ""
	}
	errText, _ := s.lastError.Load().(string)
	return s.failureCount.Load(), errText
}

// describe renders "last_success=<ago> failures=<n>" for log and stats lines.
func (s *refreshState) describe(now time.Time) string {
	last := "never"
	if at, ok := s.lastSuccessAt(); ok {
		last = humanize.RelTime(at, now, "ago", "from now")
	}
	count, errText := s.failures()
	if count == 0 {
		return "last_success=" + last
	}
	return "last_success=" + last + " failures=" + humanize.Comma(count) + " last_error=" + errText
}

// Purpose: Refresh the source daily at the configured UTC time and swap in a
// rebuilt engine.
// Key aspects: Retries with exponential backoff capped at refreshRetryMax;
// an unchanged download keeps the current engine.
// Upstream: main startup when source.url is set.
// Downstream: refreshOnce, sleepWithContext.
func startRefreshScheduler(ctx context.Context, src *sourceLoader, current *atomic.Pointer[lookup.Engine], state *refreshState) {
	hour, minute, err := src.cfg.Source.RefreshClock()
	if err != nil {
		log.Printf("Warning: refresh scheduler disabled: %v", err)
		return
	}
	go func() {
		for {
			if !sleepWithContext(ctx, nextRefreshDelay(hour, minute, time.Now().UTC())) {
				return
			}
			runRefreshWithRetry(ctx, func(ctx context.Context) error {
				return refreshOnce(ctx, src, current)
			}, state, refreshRetryBase, refreshRetryMax)
		}
	}()
}

// Purpose: Run refresh until it succeeds or ctx ends.
// Key aspects: Backoff doubles from base up to maxBackoff; state records every outcome.
// Upstream: startRefreshScheduler.
// Downstream: sleepWithContext.
func runRefreshWithRetry(ctx context.Context, refresh func(context.Context) error, state *refreshState, base, maxBackoff time.Duration) bool {
	backoff := base
	for attempt := 1; ; attempt++ {
		err := refresh(ctx)
		if err == nil {
			state.recordSuccess(time.Now().UTC())
			return true
		}
		state.recordFailure(time.Now().UTC(), err)
		log.Printf("Warning: scheduled source refresh failed (attempt=%d %s next_retry=%s): %v",
			attempt, state.describe(time.Now().UTC()), backoff, err)
		if !sleepWithContext(ctx, backoff) {
			return false
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func refreshOnce(ctx context.Context, src *sourceLoader, current *atomic.Pointer[lookup.Engine]) error {
	res, err := src.fetch(ctx, false)
	if err != nil {
		return err
	}
	if res.Status != download.StatusUpdated {
		log.Printf("Scheduled source refresh: %s", res.Status)
		return nil
	}
	engine, err := src.loadEngine(ctx)
	if err != nil {
		return err
	}
	current.Store(engine)
	log.Printf("Scheduled source refresh complete (%s downloaded, %d entities)", humanize.Bytes(uint64(res.Bytes)), engine.Index().Len())
	return nil
}

// Purpose: Sleep for a duration unless the context is canceled.
// Key aspects: Timer-based wait with cancellation.
// Upstream: refresh scheduler.
// Downstream: time.NewTimer.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// nextRefreshDelay returns the wait until the next hour:minute UTC strictly
// after now.
func nextRefreshDelay(hour, minute int, now time.Time) time.Duration {
	now = now.UTC()
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !target.After(now) {
		target = target.Add(24 * time.Hour)
	}
	return target.Sub(now)
}
