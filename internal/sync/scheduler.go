package sync

import (
	"sync"
	"time"
)

// Clock abstracts time for the orchestrator so tests can pin it.
type Clock interface {
	Now() time.Time
}

// Scheduler abstracts deferred execution. The orchestrator uses it for
// retry backoff, the connectivity stability delay and the auto-sync ticker,
// so tests can fire timers deterministically instead of sleeping.
type Scheduler interface {
	// After runs fn once after d. The returned cancel func stops the timer
	// if it has not fired yet.
	After(d time.Duration, fn func()) (cancel func())

	// Every runs fn on a fixed interval until the returned stop func is
	// called.
	Every(d time.Duration, fn func()) (stop func())
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// TimerScheduler is the production Scheduler on top of time.Timer and
// time.Ticker.
type TimerScheduler struct{}

// After implements Scheduler.
func (TimerScheduler) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Every implements Scheduler.
func (TimerScheduler) Every(d time.Duration, fn func()) func() {
	ticker := time.NewTicker(d)
	stopCh := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-stopCh:
				return
			}
		}
	}()

	return func() {
		once.Do(func() {
			ticker.Stop()
			close(stopCh)
		})
	}
}

var (
	_ Clock     = SystemClock{}
	_ Scheduler = TimerScheduler{}
)
