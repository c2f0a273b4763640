// Package pool keeps reusable timers for the response budget and the
// settle delay, both of which are armed once per command or connect.
package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a timer armed for d, reusing a pooled one when available.
//
// Return the timer with PutTimer once it is no longer selected on.
func GetTimer(d time.Duration) *time.Timer {
	v := timerPool.Get()
	if v == nil {
		return time.NewTimer(d)
	}

	t, _ := v.(*time.Timer)
	if t.Reset(d) {
		// still armed from a previous user; drop any stale tick
		select {
		case <-t.C:
		default:
		}
	}

	return t
}

// PutTimer stops t and returns it to the pool.
//
// t cannot be accessed after returning to the pool.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}

// Sleep blocks for d using a pooled timer. Non-positive durations return
// immediately.
func Sleep(d time.Duration) {
	if d <= 0 {
		return
	}

	t := GetTimer(d)
	defer PutTimer(t)

	<-t.C
}
