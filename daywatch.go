package main

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// dayWatcher notices when the calendar day changes in loc and runs the
// registered callbacks with the old and new day.
type dayWatcher struct {
	clock    Clock
	loc      *time.Location
	interval time.Duration
	log      *zap.Logger

	mu        sync.Mutex
	current   DayKey
	callbacks []func(prev, next DayKey)
}

func newDayWatcher(clock Clock, loc *time.Location, interval time.Duration, log *zap.Logger) *dayWatcher {
	if interval <= 0 || interval > maxDayCheckInterval {
		interval = maxDayCheckInterval
	}
	return &dayWatcher{
		clock:    clock,
		loc:      loc,
		interval: interval,
		log:      log.With(zap.String("component", "daywatch")),
		current:  todayIn(clock, loc),
	}
}

func (w *dayWatcher) OnChange(fn func(prev, next DayKey)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Today returns the last observed day.
func (w *dayWatcher) Today() DayKey {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// check compares the clock against the last observed day and fires the
// callbacks on change. Reports whether the day changed.
func (w *dayWatcher) check() bool {
	now := todayIn(w.clock, w.loc)

	w.mu.Lock()
	prev := w.current
	if now == prev {
		w.mu.Unlock()
		return false
	}
	w.current = now
	callbacks := append([]func(prev, next DayKey){}, w.callbacks...)
	w.mu.Unlock()

	w.log.Info("day changed", zap.Stringer("from", prev), zap.Stringer("to", now))
	for _, fn := range callbacks {
		fn(prev, now)
	}
	return true
}

// Run polls until ctx is cancelled.
func (w *dayWatcher) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.check()
		}
	}
}
