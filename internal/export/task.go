package export

import (
	"context"
	"sync"

	"github.com/rs/xid"
)

// Task is one export in flight. It lives only as long as the process.
type Task struct {
	ID      string
	Mode    Mode
	Sources []Source

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	progress Progress
	result   Result
	err      error
}

// Start runs req in the background. req.OnProgress is still called in
// addition to the task's own counters.
func (e *Exporter) Start(ctx context.Context, req Request) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		ID:      xid.New().String(),
		Mode:    req.Mode,
		Sources: req.Sources,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	userProgress := req.OnProgress
	req.OnProgress = func(p Progress) {
		t.mu.Lock()
		t.progress = p
		t.mu.Unlock()
		if userProgress != nil {
			userProgress(p)
		}
	}

	go func() {
		defer close(t.done)
		defer cancel()
		res, err := e.Run(ctx, req)
		t.mu.Lock()
		t.result, t.err = res, err
		if err != nil {
			t.progress = Progress{}
		}
		t.mu.Unlock()
	}()
	return t
}

func (t *Task) Progress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

func (t *Task) Cancel() {
	t.cancel()
}

func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}
