package executor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/meridianfm/meridian/mfs/engine/types"
)

// Progress emission is throttled so chunk-level copies do not flood
// subscribers; item boundaries always emit.
const progressEmitInterval = 200 * time.Millisecond

// tracker accumulates an operation's cumulative counters. Counters only
// ever move forward; totals are set once by the pre-pass.
type tracker struct {
	bytesDone  atomic.Int64
	itemsDone  atomic.Int64
	bytesTotal atomic.Int64
	itemsTotal atomic.Int64
	touched    atomic.Int64 // unix nanos of the last forward progress
	lastSent   atomic.Int64

	started time.Time

	mu      sync.Mutex
	current string

	notify func(types.Progress)
}

func newTracker(notify func(types.Progress)) *tracker {
	t := &tracker{
		started: time.Now(),
		notify:  notify,
	}
	t.touched.Store(time.Now().UnixNano())
	return t
}

func (t *tracker) setTotals(bytes, items int64) {
	t.bytesTotal.Store(bytes)
	t.itemsTotal.Store(items)
}

func (t *tracker) addBytes(n int64) {
	t.bytesDone.Add(n)
	t.touch()
	t.maybeNotify(false)
}

func (t *tracker) addItems(n int64) {
	t.itemsDone.Add(n)
	t.touch()
	t.maybeNotify(true)
}

func (t *tracker) setCurrent(path string) {
	t.mu.Lock()
	t.current = path
	t.mu.Unlock()
	t.touch()
}

func (t *tracker) touch() {
	t.touched.Store(time.Now().UnixNano())
}

func (t *tracker) snapshot() types.Progress {
	t.mu.Lock()
	current := t.current
	t.mu.Unlock()
	return types.Progress{
		BytesDone:   t.bytesDone.Load(),
		BytesTotal:  t.bytesTotal.Load(),
		ItemsDone:   t.itemsDone.Load(),
		ItemsTotal:  t.itemsTotal.Load(),
		CurrentPath: current,
		Elapsed:     time.Since(t.started),
	}
}

// publish emits the current snapshot unconditionally.
func (t *tracker) publish() {
	t.lastSent.Store(time.Now().UnixNano())
	t.notify(t.snapshot())
}

func (t *tracker) maybeNotify(force bool) {
	now := time.Now().UnixNano()
	last := t.lastSent.Load()
	if !force && now-last < int64(progressEmitInterval) {
		return
	}
	if t.lastSent.CompareAndSwap(last, now) {
		t.notify(t.snapshot())
	}
}
