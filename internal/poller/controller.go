package poller

import (
	"context"
	"sync"
)

const (
	SlotList   = "list"
	SlotDetail = "detail"
)

// Event carries one committed Snapshot[T] for a slot.
type Event struct {
	Slot     string
	Key      string
	Snapshot any
}

// TickObserver is told the outcome of every committed tick.
type TickObserver interface {
	ObservePoll(slot, outcome string)
}

type slotState struct {
	key    string
	cancel context.CancelFunc

	// sendMu is held while a commit is checked and delivered. Holding it
	// after the slot is replaced waits out a delivery already under way.
	sendMu sync.Mutex
}

// Controller owns one running query per slot. Starting a query in a slot
// cancels the previous one. Once Start or Stop returns, the replaced query
// delivers nothing more, even when it used the same key.
type Controller struct {
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	slots    map[string]*slotState
	events   chan Event
	wg       sync.WaitGroup
	observer TickObserver
	closed   bool
}

func NewController(parent context.Context, observer TickObserver) *Controller {
	ctx, cancel := context.WithCancel(parent)
	return &Controller{
		ctx:      ctx,
		cancel:   cancel,
		slots:    make(map[string]*slotState),
		events:   make(chan Event, 16),
		observer: observer,
	}
}

func (c *Controller) Events() <-chan Event {
	return c.events
}

// Accept reports whether key is the current key of slot.
func (c *Controller) Accept(slot, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[slot]
	return ok && s.key == key
}

// CurrentKey returns the key running in slot, if any.
func (c *Controller) CurrentKey(slot string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[slot]
	if !ok {
		return "", false
	}
	return s.key, true
}

// Start runs q in slot, replacing whatever ran there.
func Start[T any](c *Controller, slot string, q Query[T]) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	prev := c.slots[slot]
	ctx, cancel := context.WithCancel(c.ctx)
	st := &slotState{key: q.Key, cancel: cancel}
	c.slots[slot] = st
	c.wg.Add(1)
	c.mu.Unlock()
	retire(prev)

	go func() {
		defer c.wg.Done()
		q.Run(ctx, func(s Snapshot[T]) {
			st.sendMu.Lock()
			defer st.sendMu.Unlock()
			if ctx.Err() != nil || !c.owns(slot, st) {
				return
			}
			c.observe(slot, s.Err, s.Done)
			select {
			case c.events <- Event{Slot: slot, Key: s.Key, Snapshot: s}:
			case <-ctx.Done():
			}
		})
	}()
}

func (c *Controller) owns(slot string, st *slotState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slots[slot] == st
}

// retire cancels a replaced query and waits until it is not delivering.
func retire(s *slotState) {
	if s == nil {
		return
	}
	s.cancel()
	s.sendMu.Lock()
	s.sendMu.Unlock()
}

// Stop cancels the query in slot. A request already in flight completes
// but its result is dropped.
func (c *Controller) Stop(slot string) {
	c.mu.Lock()
	s := c.slots[slot]
	delete(c.slots, slot)
	c.mu.Unlock()
	retire(s)
}

func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for slot, s := range c.slots {
		s.cancel()
		delete(c.slots, slot)
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	close(c.events)
}

func (c *Controller) observe(slot string, err error, done bool) {
	if c.observer == nil {
		return
	}
	switch {
	case err != nil:
		c.observer.ObservePoll(slot, OutcomeError)
	case done:
		c.observer.ObservePoll(slot, OutcomeDone)
	default:
		c.observer.ObservePoll(slot, OutcomeOK)
	}
}
