package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingObserver struct {
	mu sync.Mutex
	n  map[string]int
}

func (o *countingObserver) ObservePoll(slot, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.n == nil {
		o.n = make(map[string]int)
	}
	o.n[slot+"/"+outcome]++
}

func (o *countingObserver) count(k string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.n[k]
}

func nextEvent(t *testing.T, c *Controller) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestControllerDeliversTypedSnapshots(t *testing.T) {
	obs := &countingObserver{}
	c := NewController(context.Background(), obs)
	defer c.Close()

	Start(c, SlotDetail, Query[string]{
		Key:      "detail:a:x1",
		Interval: time.Hour,
		Fetch:    func(ctx context.Context) (string, error) { return "completed", nil },
		StopWhen: func(s string) bool { return s == "completed" },
	})

	ev := nextEvent(t, c)
	assert.Equal(t, SlotDetail, ev.Slot)
	snap, ok := ev.Snapshot.(Snapshot[string])
	require.True(t, ok)
	assert.True(t, snap.Done)
	assert.Equal(t, 1, obs.count("detail/done"))
}

func TestControllerDropsCommitsForReplacedKey(t *testing.T) {
	c := NewController(context.Background(), nil)
	defer c.Close()

	release := make(chan struct{})
	Start(c, SlotDetail, Query[string]{
		Key:      "old",
		Interval: time.Hour,
		Fetch: func(ctx context.Context) (string, error) {
			<-release
			return "old-data", nil
		},
	})
	Start(c, SlotDetail, Query[string]{
		Key:      "new",
		Interval: time.Hour,
		Fetch:    func(ctx context.Context) (string, error) { return "new-data", nil },
	})
	close(release)

	ev := nextEvent(t, c)
	assert.Equal(t, "new", ev.Key)
	assert.False(t, c.Accept(SlotDetail, "old"))
	assert.True(t, c.Accept(SlotDetail, "new"))

	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event for key %q", ev.Key)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestControllerRestartWithSameKeyDeliversOnlyNewQuery(t *testing.T) {
	c := NewController(context.Background(), nil)
	defer c.Close()

	Start(c, SlotList, Query[string]{
		Key:      "list",
		Interval: time.Millisecond,
		Fetch:    func(ctx context.Context) (string, error) { return "old", nil },
	})
	// Nobody reads yet, so the old query ends up blocked on a full channel.
	require.Eventually(t, func() bool { return len(c.events) == cap(c.events) }, 2*time.Second, time.Millisecond)

	Start(c, SlotList, Query[string]{
		Key:      "list",
		Interval: time.Millisecond,
		Fetch:    func(ctx context.Context) (string, error) { return "new", nil },
	})
	buffered := len(c.events)

	for i := 0; i < buffered; i++ {
		nextEvent(t, c)
	}
	for i := 0; i < 5; i++ {
		snap := nextEvent(t, c).Snapshot.(Snapshot[string])
		assert.Equal(t, "new", snap.Data)
	}
}

func TestControllerStopDropsInFlightResult(t *testing.T) {
	c := NewController(context.Background(), nil)
	defer c.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	Start(c, SlotList, Query[int]{
		Key:      "list",
		Interval: time.Hour,
		Fetch: func(ctx context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		},
	})
	<-started
	c.Stop(SlotList)
	close(release)

	_, running := c.CurrentKey(SlotList)
	assert.False(t, running)
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event after stop: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestControllerCloseClosesEvents(t *testing.T) {
	c := NewController(context.Background(), nil)
	Start(c, SlotList, Query[int]{
		Key:      "list",
		Interval: time.Millisecond,
		Fetch:    func(ctx context.Context) (int, error) { return 1, nil },
	})
	nextEvent(t, c)
	c.Close()

	for range c.Events() {
	}
	Start(c, SlotList, Query[int]{Key: "late", Fetch: func(ctx context.Context) (int, error) { return 0, nil }})
	_, ok := c.CurrentKey(SlotList)
	assert.False(t, ok)
}
