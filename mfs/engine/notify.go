package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfm/meridian/mfs/engine/types"
)

// Subscriber is one consumer of the unified notification stream. Each
// subscriber owns an ordered mailbox: notifications are queued in publish
// order and forwarded by a dedicated goroutine, so a slow consumer delays
// only itself and never loses events for a single origin.
type Subscriber struct {
	id  uuid.UUID
	out chan types.Notification

	mu     sync.Mutex
	queue  []types.Notification
	closed bool

	wake chan struct{}
	stop chan struct{}
}

// ID returns the subscriber handle.
func (s *Subscriber) ID() uuid.UUID { return s.id }

// Notifications is the ordered event stream. The channel closes after
// Unsubscribe or engine shutdown.
func (s *Subscriber) Notifications() <-chan types.Notification { return s.out }

// push appends one notification to the mailbox. Never blocks; publishers
// run on watcher, executor and search goroutines that must not stall.
func (s *Subscriber) push(n types.Notification) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, n)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run drains the mailbox into the delivery channel, preserving queue
// order. Exits once the subscriber is closed, delivering what was queued
// up to that point unless the consumer is gone too.
func (s *Subscriber) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			select {
			case <-s.wake:
			case <-s.stop:
			}
			continue
		}
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, n := range batch {
			select {
			case s.out <- n:
			case <-s.stop:
				return
			}
		}
	}
}

func (s *Subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.stop)
}

// broadcaster fans notifications out to every live subscriber.
type broadcaster struct {
	capacity int

	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscriber
	wg   sync.WaitGroup
}

func newBroadcaster(capacity int) *broadcaster {
	if capacity <= 0 {
		capacity = 1024
	}
	return &broadcaster{
		capacity: capacity,
		subs:     make(map[uuid.UUID]*Subscriber),
	}
}

func (b *broadcaster) subscribe() *Subscriber {
	s := &Subscriber{
		id:   uuid.New(),
		out:  make(chan types.Notification, b.capacity),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[s.id] = s
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		s.run()
	}()
	return s
}

func (b *broadcaster) unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	s, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()
	if ok {
		s.close()
	}
}

// publish queues n for every subscriber. Publish order is delivery order
// per subscriber; callers producing events for one origin from one
// goroutine therefore get in-order delivery for that origin.
func (b *broadcaster) publish(n types.Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		s.push(n)
	}
}

func (b *broadcaster) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// closeAll stops every subscriber and waits for the forwarders to exit.
func (b *broadcaster) closeAll() {
	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[uuid.UUID]*Subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
	b.wg.Wait()
}
