// Package poller runs keyed fetches on an interval, keeping the last good
// result when a tick fails.
package poller

import (
	"context"
	"time"
)

const DefaultInterval = 5 * time.Second

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomeDone  = "done"
)

// Retry bounds the extra tries of one tick. The zero value retries nothing.
type Retry struct {
	Attempts int
	Delay    time.Duration
}

var DefaultRetry = Retry{Attempts: 2, Delay: time.Second}

// Snapshot is what a query commits after each tick. On failure Data is
// the last good value and Stale is set. Done marks the final commit of a
// query whose stop condition held.
type Snapshot[T any] struct {
	Key       string
	Data      T
	Loaded    bool
	UpdatedAt time.Time
	Err       error
	Stale     bool
	Done      bool
}

type Query[T any] struct {
	Key      string
	Fetch    func(ctx context.Context) (T, error)
	Interval time.Duration
	StopWhen func(T) bool
	Retry    Retry
}

func (q Query[T]) interval() time.Duration {
	if q.Interval <= 0 {
		return DefaultInterval
	}
	return q.Interval
}

// Run fetches immediately and then once per interval until ctx ends or
// StopWhen holds for a fetched value. It blocks.
func (q Query[T]) Run(ctx context.Context, commit func(Snapshot[T])) {
	var (
		last    T
		loaded  bool
		updated time.Time
	)
	for {
		data, err := q.fetch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			commit(Snapshot[T]{
				Key:       q.Key,
				Data:      last,
				Loaded:    loaded,
				UpdatedAt: updated,
				Err:       err,
				Stale:     true,
			})
		} else {
			last, loaded, updated = data, true, time.Now()
			done := q.StopWhen != nil && q.StopWhen(data)
			commit(Snapshot[T]{
				Key:       q.Key,
				Data:      last,
				Loaded:    true,
				UpdatedAt: updated,
				Done:      done,
			})
			if done {
				return
			}
		}

		timer := time.NewTimer(q.interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (q Query[T]) fetch(ctx context.Context) (T, error) {
	var (
		data T
		err  error
	)
	for attempt := 0; attempt <= max(0, q.Retry.Attempts); attempt++ {
		if attempt > 0 && q.Retry.Delay > 0 {
			t := time.NewTimer(q.Retry.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return data, ctx.Err()
			case <-t.C:
			}
		}
		data, err = q.Fetch(ctx)
		if err == nil || ctx.Err() != nil {
			return data, err
		}
	}
	return data, err
}
