package presenter

import (
	"sync"
	"time"
)

// Timer is a handle to a scheduled presentation.
type Timer interface {
	// Stop cancels the timer. Safe to call more than once. A stopped
	// timer never fires again.
	Stop()
}

// TimerFactory schedules fn to run after d, and every d thereafter when
// repeats is set. Injectable so presenter tests run without wall-clock
// delays.
type TimerFactory func(d time.Duration, repeats bool, fn func()) Timer

// NewTimer is the production factory.
func NewTimer(d time.Duration, repeats bool, fn func()) Timer {
	if !repeats {
		t := time.AfterFunc(d, fn)
		return &oneShotTimer{t: t}
	}

	rt := &repeatingTimer{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-rt.ticker.C:
				fn()
			case <-rt.done:
				return
			}
		}
	}()
	return rt
}

type oneShotTimer struct {
	t *time.Timer
}

func (o *oneShotTimer) Stop() { o.t.Stop() }

type repeatingTimer struct {
	ticker *time.Ticker
	once   sync.Once
	done   chan struct{}
}

func (r *repeatingTimer) Stop() {
	r.once.Do(func() {
		r.ticker.Stop()
		close(r.done)
	})
}
