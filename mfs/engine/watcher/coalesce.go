package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/meridianfm/meridian/mfs/engine/types"
)

// coalescer collapses bursts of raw changes into single events. Changes to
// the same path inside the debounce window merge to the latest kind, so a
// large copy into a watched folder surfaces one event per file instead of
// thousands. A second timer caps how long a hot path can keep deferring its
// flush.
type coalescer struct {
	delay    time.Duration
	maxDelay time.Duration

	mu      sync.Mutex
	pending map[string]*pendingChange
	closed  bool

	out chan types.ChangeEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type pendingChange struct {
	event    types.ChangeEvent
	timer    *time.Timer
	capTimer *time.Timer
}

func newCoalescer(delay, maxDelay time.Duration, capacity int) *coalescer {
	ctx, cancel := context.WithCancel(context.Background())
	return &coalescer{
		delay:    delay,
		maxDelay: maxDelay,
		pending:  make(map[string]*pendingChange),
		out:      make(chan types.ChangeEvent, capacity),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// add merges event into the pending change for its path and re-arms the
// debounce timer. The first event for a path also arms the cap timer, which
// is never reset.
func (c *coalescer) add(event types.ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	path := event.Path
	p, exists := c.pending[path]
	if !exists {
		p = &pendingChange{}
		c.pending[path] = p
		p.capTimer = time.AfterFunc(c.maxDelay, func() {
			c.flush(path)
		})
	}

	// Latest kind wins.
	p.event = event

	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(c.delay, func() {
		c.flush(path)
	})
}

// emit bypasses debouncing: any pending change for the event's path (and,
// for renames, its old path) is discarded and the event is delivered at
// once. Renames are discrete user actions, not bursts.
func (c *coalescer) emit(event types.ChangeEvent) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.drop(event.Path)
	if event.OldPath != "" {
		c.drop(event.OldPath)
	}
	c.wg.Add(1)
	c.mu.Unlock()

	c.send(event)
}

// flush delivers the pending change for path and clears it. Timer callbacks
// land here; a path already flushed or dropped is a no-op.
func (c *coalescer) flush(path string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	p, ok := c.pending[path]
	if !ok {
		c.mu.Unlock()
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	if p.capTimer != nil {
		p.capTimer.Stop()
	}
	delete(c.pending, path)
	event := p.event
	c.wg.Add(1)
	c.mu.Unlock()

	c.send(event)
}

// drop discards the pending change for path. Caller holds c.mu.
func (c *coalescer) drop(path string) {
	p, ok := c.pending[path]
	if !ok {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	if p.capTimer != nil {
		p.capTimer.Stop()
	}
	delete(c.pending, path)
}

// send must be paired with a wg.Add performed while holding c.mu and before
// closed is observed false, so close can drain in-flight deliveries.
func (c *coalescer) send(event types.ChangeEvent) {
	defer c.wg.Done()

	select {
	case c.out <- event:
	case <-c.ctx.Done():
	}
}

// events is the coalesced output stream. It is closed by close after the
// last in-flight delivery.
func (c *coalescer) events() <-chan types.ChangeEvent {
	return c.out
}

// close stops all timers, discards undelivered pending changes and waits
// for in-flight sends before closing the output channel.
func (c *coalescer) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for path := range c.pending {
		c.drop(path)
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	close(c.out)
}
