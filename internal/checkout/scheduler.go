package checkout

import (
	"context"
	"sync"
	"time"
)

// Scheduler owns the timers and goroutines of one checkout session. A retry
// or a switch to a different payment method cancels the whole scheduler, so
// no timer from a superseded session can fire into the new one.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{ctx: ctx, cancel: cancel}
}

// Go runs fn on its own goroutine bound to the scheduler's lifetime.
func (s *Scheduler) Go(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

// Sleep waits for d or until the scheduler is cancelled. Returns false on
// cancellation.
func (s *Scheduler) Sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// SleepOrWake waits for d, an early wake signal, or cancellation. Returns
// false only on cancellation; a wake counts as the delay having elapsed.
func (s *Scheduler) SleepOrWake(d time.Duration, wake <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-wake:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Scheduler) Cancelled() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}

// Cancel stops all pending waits and marks the scheduler dead.
func (s *Scheduler) Cancel() {
	s.cancel()
}

// Wait blocks until every scheduled goroutine has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
