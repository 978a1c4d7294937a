package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfm/meridian/mfs/engine/common"
	"github.com/meridianfm/meridian/mfs/engine/types"
)

// Operation is the live handle for one submitted mutation. Lifecycle:
// Queued -> Running -> {Completed | Failed | Cancelled}, with Paused
// reachable from Running. Terminal states are final and the handle stays
// readable after them.
type Operation struct {
	id  uuid.UUID
	req Request

	ctx    context.Context
	cancel context.CancelFunc
	gate   *pauseGate

	progress  *tracker
	subtotals map[string]totals // per-source pre-pass totals, written before the item loop

	mu         sync.Mutex
	state      types.OperationState
	items      []types.ItemResult
	opErr      error
	startedAt  time.Time
	finishedAt time.Time
	result     *types.OperationResult

	policyMu sync.Mutex
	policy   types.ConflictPolicy

	awaitingConflict atomic.Bool
	awaitingConfirm  atomic.Bool
	// Buffered one deep so a caller reacting to the pending event can
	// answer before the worker reaches its receive.
	resolutions   chan types.ConflictResolution
	confirmations chan struct{}

	done chan struct{}
}

func newOperation(parent context.Context, req Request, notify func(id uuid.UUID, p types.Progress)) *Operation {
	ctx, cancel := context.WithCancel(parent)
	op := &Operation{
		id:            uuid.New(),
		req:           req,
		ctx:           ctx,
		cancel:        cancel,
		gate:          newPauseGate(),
		state:         types.StateQueued,
		startedAt:     time.Now(),
		policy:        initialPolicy(req),
		resolutions:   make(chan types.ConflictResolution, 1),
		confirmations: make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	op.progress = newTracker(func(p types.Progress) { notify(op.id, p) })
	return op
}

func initialPolicy(req Request) types.ConflictPolicy {
	switch req.Kind {
	case types.OpCopy:
		return req.Copy.Conflict
	case types.OpMove:
		return req.Move.Conflict
	case types.OpArchiveCreate, types.OpArchiveExtract:
		return req.Archive.Conflict
	default:
		return ""
	}
}

// ID is the operation's identity, assigned at submission.
func (op *Operation) ID() uuid.UUID { return op.id }

// Kind reports what the operation does.
func (op *Operation) Kind() types.OperationKind { return op.req.Kind }

// Sources returns the source paths, normalized.
func (op *Operation) Sources() []string {
	return append([]string(nil), op.req.Sources...)
}

// Dest returns the normalized destination path, empty for kinds without
// one.
func (op *Operation) Dest() string { return op.req.Dest }

// State reports the current lifecycle state.
func (op *Operation) State() types.OperationState {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.state
}

// Progress returns the current counter snapshot.
func (op *Operation) Progress() types.Progress {
	return op.progress.snapshot()
}

// Done closes when the operation reaches a terminal state.
func (op *Operation) Done() <-chan struct{} { return op.done }

// Result returns the terminal report, nil while the operation is still
// live.
func (op *Operation) Result() *types.OperationResult {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.result == nil {
		return nil
	}
	r := *op.result
	r.Items = append([]types.ItemResult(nil), op.result.Items...)
	return &r
}

// AwaitingConflict reports whether the operation is parked on a name
// collision that needs a caller decision.
func (op *Operation) AwaitingConflict() bool { return op.awaitingConflict.Load() }

// AwaitingConfirmation reports whether a delete is parked waiting for the
// caller to approve permanent removal.
func (op *Operation) AwaitingConfirmation() bool { return op.awaitingConfirm.Load() }

func (op *Operation) awaitingInput() bool {
	return op.awaitingConflict.Load() || op.awaitingConfirm.Load()
}

// checkpoint is the cooperative cancellation and pause point, hit between
// items, between archive entries and per chunk inside file copies.
func (op *Operation) checkpoint() error {
	select {
	case <-op.ctx.Done():
		return op.ctx.Err()
	default:
	}
	return op.gate.wait(op.ctx)
}

func (op *Operation) markStarted() {
	op.mu.Lock()
	if op.state == types.StateQueued {
		op.state = types.StateRunning
	}
	op.mu.Unlock()
}

// pauseRequested flips Running to Paused. Any other state refuses.
func (op *Operation) pauseRequested() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.state != types.StateRunning {
		return false
	}
	op.state = types.StatePaused
	op.gate.pause()
	return true
}

// resumeRequested flips Paused back to Running.
func (op *Operation) resumeRequested() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.state != types.StatePaused {
		return false
	}
	op.state = types.StateRunning
	op.gate.resume()
	return true
}

func (op *Operation) currentPolicy() types.ConflictPolicy {
	op.policyMu.Lock()
	defer op.policyMu.Unlock()
	return op.policy
}

func (op *Operation) setPolicy(p types.ConflictPolicy) {
	op.policyMu.Lock()
	op.policy = p
	op.policyMu.Unlock()
}

// failOperation records an operation-level failure, as opposed to a
// per-item one.
func (op *Operation) failOperation(err error) {
	op.mu.Lock()
	if op.opErr == nil {
		op.opErr = err
	}
	op.mu.Unlock()
}

func (op *Operation) recordItem(item types.ItemResult) {
	op.mu.Lock()
	op.items = append(op.items, item)
	op.mu.Unlock()
}

func (op *Operation) itemDone(src, dst string) {
	op.recordItem(types.ItemResult{Source: src, Destination: dst, Success: true})
}

func (op *Operation) itemSkipped(src, dst string) {
	op.recordItem(types.ItemResult{Source: src, Destination: dst, Skipped: true})
}

func (op *Operation) itemFailed(src, dst string, err error) {
	op.recordItem(types.ItemResult{
		Source:      src,
		Destination: dst,
		Error:       err.Error(),
		ErrorKind:   string(common.KindOf(err)),
	})
}

// sourceTotals returns the pre-pass subtotal for one source, so a whole
// subtree completed by a single rename can advance progress in one step.
func (op *Operation) sourceTotals(src string) totals {
	return op.subtotals[src]
}

// pauseGate parks workers while the operation is paused. The gate is open
// when its channel is closed; pausing swaps in a fresh channel.
type pauseGate struct {
	mu     sync.Mutex
	paused bool
	ch     chan struct{}
}

func newPauseGate() *pauseGate {
	g := &pauseGate{ch: make(chan struct{})}
	close(g.ch)
	return g
}

func (g *pauseGate) pause() {
	g.mu.Lock()
	if !g.paused {
		g.paused = true
		g.ch = make(chan struct{})
	}
	g.mu.Unlock()
}

func (g *pauseGate) resume() {
	g.mu.Lock()
	if g.paused {
		g.paused = false
		close(g.ch)
	}
	g.mu.Unlock()
}

func (g *pauseGate) isPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// wait blocks while the gate is closed. Cancellation wins over a pause so
// cancelled operations never stay parked.
func (g *pauseGate) wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
