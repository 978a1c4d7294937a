// Package executor runs bulk filesystem mutations as supervised
// operations. Submissions are queued against a concurrency cap and run
// asynchronously with cumulative progress, cooperative pause and
// cancellation between copy chunks, interactive conflict resolution, and
// a per-item outcome report once terminal. Completed destinations are
// never rolled back; the report says exactly which sources succeeded.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/meridianfm/meridian/mfs/config"
	"github.com/meridianfm/meridian/mfs/engine/archive"
	"github.com/meridianfm/meridian/mfs/engine/common"
	"github.com/meridianfm/meridian/mfs/engine/options"
	"github.com/meridianfm/meridian/mfs/engine/trash"
	"github.com/meridianfm/meridian/mfs/engine/types"
	"github.com/meridianfm/meridian/mfs/journal"
)

const (
	defaultMaxConcurrentOps = 4
	defaultCopyBufferKB     = 32
	defaultStallTimeoutSec  = 30

	// partSuffix marks in-flight copies; renameOver drops it atomically.
	partSuffix = ".part"
)

// Events receives lifecycle callbacks for every operation. Callbacks are
// invoked from operation goroutines and must not block.
type Events interface {
	StateChanged(id uuid.UUID, kind types.OperationKind, state types.OperationState)
	ProgressUpdated(id uuid.UUID, p types.Progress)
	ConflictPending(conflict types.ConflictInfo)
	ConfirmationPending(id uuid.UUID, cause error)
	Stalled(id uuid.UUID, p types.Progress)
	Finished(result types.OperationResult)
}

// NopEvents discards every callback.
type NopEvents struct{}

func (NopEvents) StateChanged(uuid.UUID, types.OperationKind, types.OperationState) {}
func (NopEvents) ProgressUpdated(uuid.UUID, types.Progress)                         {}
func (NopEvents) ConflictPending(types.ConflictInfo)                                {}
func (NopEvents) ConfirmationPending(uuid.UUID, error)                              {}
func (NopEvents) Stalled(uuid.UUID, types.Progress)                                 {}
func (NopEvents) Finished(types.OperationResult)                                    {}

var _ Events = NopEvents{}

// Recorder persists terminal operation reports and trash records. A nil
// Recorder disables journaling.
type Recorder interface {
	RecordOperation(entry journal.OperationEntry) error
	RecordTrash(rec trash.Record, operationID uuid.UUID) error
}

// Request describes one operation. Fields beyond Kind are per kind:
// copy and move take Sources plus a Dest directory, delete takes
// Sources, rename takes one source plus the new Name, the create kinds
// take a Dest directory plus Name, archive create takes Sources plus the
// output path in Dest, and extract takes one archive source plus a Dest
// directory.
type Request struct {
	Kind    types.OperationKind
	Sources []string
	Dest    string
	Name    string
	Format  archive.Format

	Copy    options.CopyOptions
	Move    options.MoveOptions
	Delete  options.DeleteOptions
	Archive options.ArchiveOptions
}

// Executor owns the operation queue. All exported methods are safe for
// concurrent use.
type Executor struct {
	cfg     config.ExecConfig
	trash   *trash.Trash
	journal Recorder
	events  Events

	paths  *common.PathUtils
	safety *common.SafetyUtils
	files  *common.FileUtils

	sem chan struct{}
	wg  *conc.WaitGroup

	mu     sync.RWMutex
	ops    map[uuid.UUID]*Operation
	order  []uuid.UUID
	closed bool

	baseCtx context.Context
	stop    context.CancelFunc
}

// New builds an executor. tr may be nil, in which case every trashing
// delete needs a permanent-removal confirmation; rec may be nil to
// disable journaling; events may be nil.
func New(tr *trash.Trash, rec Recorder, events Events, cfg config.ExecConfig) *Executor {
	if events == nil {
		events = NopEvents{}
	}
	cfg = withDefaults(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	return &Executor{
		cfg:     cfg,
		trash:   tr,
		journal: rec,
		events:  events,
		paths:   common.NewPathUtils(),
		safety:  common.NewSafetyUtils(),
		files:   common.NewFileUtils(),
		sem:     make(chan struct{}, cfg.MaxConcurrentOps),
		wg:      conc.NewWaitGroup(),
		ops:     make(map[uuid.UUID]*Operation),
		baseCtx: ctx,
		stop:    cancel,
	}
}

func withDefaults(cfg config.ExecConfig) config.ExecConfig {
	if cfg.MaxConcurrentOps <= 0 {
		cfg.MaxConcurrentOps = defaultMaxConcurrentOps
	}
	if cfg.CopyBufferKB <= 0 {
		cfg.CopyBufferKB = defaultCopyBufferKB
	}
	if cfg.StallTimeoutSec <= 0 {
		cfg.StallTimeoutSec = defaultStallTimeoutSec
	}
	return cfg
}

// Submit validates and enqueues a request. The returned handle is live
// immediately; execution starts once a concurrency slot frees up.
func (x *Executor) Submit(req Request) (*Operation, error) {
	if err := x.validate(&req); err != nil {
		return nil, err
	}

	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return nil, errors.New("executor is closed")
	}
	op := newOperation(x.baseCtx, req, func(id uuid.UUID, p types.Progress) {
		x.events.ProgressUpdated(id, p)
	})
	x.ops[op.id] = op
	x.order = append(x.order, op.id)
	x.mu.Unlock()

	x.events.StateChanged(op.id, req.Kind, types.StateQueued)
	slog.Info("Operation queued", "operation_id", op.id, "kind", req.Kind, "sources", len(req.Sources))

	x.wg.Go(func() {
		select {
		case x.sem <- struct{}{}:
			defer func() { <-x.sem }()
		case <-op.ctx.Done():
			x.finish(op)
			return
		}
		x.run(op)
	})
	return op, nil
}

// validate checks per-kind requirements and normalizes the request in
// place: absolute cleaned paths, defaulted conflict policies, detected
// archive format.
func (x *Executor) validate(req *Request) error {
	req.Sources = append([]string(nil), req.Sources...)
	for i, src := range req.Sources {
		if err := x.paths.ValidatePath(src); err != nil {
			return err
		}
		req.Sources[i] = x.paths.NormalizePath(src)
	}
	if req.Dest != "" {
		if err := x.paths.ValidatePath(req.Dest); err != nil {
			return err
		}
		req.Dest = x.paths.NormalizePath(req.Dest)
	}

	switch req.Kind {
	case types.OpCopy, types.OpMove:
		if len(req.Sources) == 0 || req.Dest == "" {
			return fmt.Errorf("%s needs at least one source and a destination", req.Kind)
		}
	case types.OpDelete:
		if len(req.Sources) == 0 {
			return errors.New("delete needs at least one source")
		}
	case types.OpRename:
		if len(req.Sources) != 1 {
			return errors.New("rename takes exactly one source")
		}
		if err := x.paths.ValidateName(req.Name); err != nil {
			return err
		}
	case types.OpCreateFile, types.OpCreateFolder:
		if req.Dest == "" {
			return fmt.Errorf("%s needs a destination directory", req.Kind)
		}
		if err := x.paths.ValidateName(req.Name); err != nil {
			return err
		}
	case types.OpArchiveCreate:
		if len(req.Sources) == 0 || req.Dest == "" {
			return errors.New("archive create needs sources and a destination path")
		}
		if req.Format == "" {
			format, err := archive.DetectFormat(req.Dest)
			if err != nil {
				return err
			}
			req.Format = format
		}
	case types.OpArchiveExtract:
		if len(req.Sources) != 1 || req.Dest == "" {
			return errors.New("extract takes exactly one archive and a destination directory")
		}
		switch req.Archive.Conflict {
		case "", types.ConflictSkip, types.ConflictOverwrite:
		default:
			return fmt.Errorf("extract supports skip or overwrite collisions, not %q", req.Archive.Conflict)
		}
	default:
		return fmt.Errorf("unknown operation kind %q", req.Kind)
	}

	if req.Copy.Conflict == "" {
		req.Copy.Conflict = types.ConflictAsk
	}
	if req.Move.Conflict == "" {
		req.Move.Conflict = types.ConflictAsk
	}
	if req.Archive.Conflict == "" {
		req.Archive.Conflict = types.ConflictOverwrite
	}
	return nil
}

func (x *Executor) run(op *Operation) {
	if op.ctx.Err() != nil {
		x.finish(op)
		return
	}
	op.markStarted()
	x.events.StateChanged(op.id, op.req.Kind, types.StateRunning)
	slog.Debug("Operation running", "operation_id", op.id, "kind", op.req.Kind)

	stopMonitor := x.watchForStall(op)
	defer stopMonitor()

	if err := x.prepare(op); err != nil {
		if op.ctx.Err() == nil {
			op.failOperation(err)
		}
		x.finish(op)
		return
	}

	switch op.req.Kind {
	case types.OpCopy:
		x.runCopy(op)
	case types.OpMove:
		x.runMove(op)
	case types.OpDelete:
		x.runDelete(op)
	case types.OpRename:
		x.runRename(op)
	case types.OpCreateFile:
		x.runCreateFile(op)
	case types.OpCreateFolder:
		x.runCreateFolder(op)
	case types.OpArchiveCreate:
		x.runArchiveCreate(op)
	case types.OpArchiveExtract:
		x.runArchiveExtract(op)
	}
	x.finish(op)
}

// prepare computes the progress denominators. Copy additionally refuses
// upfront when the destination volume clearly lacks room.
func (x *Executor) prepare(op *Operation) error {
	switch op.req.Kind {
	case types.OpCopy, types.OpMove, types.OpDelete, types.OpArchiveCreate:
		grand, perSource, err := computeTotals(op.ctx, op.req.Sources, x.cfg.PrePassWorkers)
		if err != nil {
			return err
		}
		op.subtotals = perSource
		op.progress.setTotals(grand.bytes, grand.items)
		if op.req.Kind == types.OpCopy {
			if free, ok := common.FreeSpace(op.req.Dest); ok && grand.bytes > free {
				return common.WrapPath(common.KindInsufficientSpace, op.req.Dest,
					fmt.Errorf("%d bytes needed, %d available", grand.bytes, free))
			}
		}
	case types.OpArchiveExtract:
		entries, err := archive.List(op.ctx, op.req.Sources[0])
		if err != nil {
			return err
		}
		var bytes int64
		for _, e := range entries {
			bytes += e.Size
		}
		op.progress.setTotals(bytes, int64(len(entries)))
	default:
		op.progress.setTotals(0, 1)
	}
	op.progress.publish()
	return nil
}

// finish settles the terminal state, publishes the result and records it
// in the journal. Safe to call exactly once per operation.
func (x *Executor) finish(op *Operation) {
	op.mu.Lock()
	state := types.StateCompleted
	switch {
	case op.ctx.Err() != nil && op.opErr == nil && int64(len(op.items)) < expectedItems(op.req):
		state = types.StateCancelled
	case op.opErr != nil:
		state = types.StateFailed
	default:
		attempted, failed := 0, 0
		for _, item := range op.items {
			if item.Skipped {
				continue
			}
			attempted++
			if !item.Success {
				failed++
			}
		}
		if attempted > 0 && failed == attempted {
			state = types.StateFailed
		}
	}
	op.state = state
	op.finishedAt = time.Now()

	result := types.OperationResult{
		ID:         op.id,
		Kind:       op.req.Kind,
		State:      state,
		Items:      append([]types.ItemResult(nil), op.items...),
		Progress:   op.progress.snapshot(),
		StartedAt:  op.startedAt,
		FinishedAt: op.finishedAt,
	}
	if op.opErr != nil {
		result.Error = op.opErr.Error()
	} else if state == types.StateCancelled {
		result.Error = context.Canceled.Error()
	}
	op.result = &result
	close(op.done)
	op.mu.Unlock()

	if x.journal != nil {
		if err := x.journal.RecordOperation(journalEntry(op.req, result)); err != nil {
			slog.Error("Failed to record operation in journal", "operation_id", op.id, "error", err)
		}
	}
	x.events.StateChanged(op.id, op.req.Kind, state)
	x.events.Finished(result)
	slog.Info("Operation finished", "operation_id", op.id, "kind", op.req.Kind,
		"state", state, "items", len(result.Items))
}

// expectedItems is the item count a fully processed operation reports;
// fewer at cancellation means work was actually cut short.
func expectedItems(req Request) int64 {
	switch req.Kind {
	case types.OpCopy, types.OpMove, types.OpDelete, types.OpArchiveCreate:
		return int64(len(req.Sources))
	default:
		return 1
	}
}

// Pause parks a running operation at its next checkpoint. Chunked copies
// check between chunks, so large files pause promptly.
func (x *Executor) Pause(id uuid.UUID) error {
	op, ok := x.Get(id)
	if !ok {
		return fmt.Errorf("unknown operation %s", id)
	}
	if !op.pauseRequested() {
		return fmt.Errorf("operation %s is not running", id)
	}
	x.events.StateChanged(op.id, op.req.Kind, types.StatePaused)
	slog.Info("Operation paused", "operation_id", id)
	return nil
}

// Resume releases a paused operation.
func (x *Executor) Resume(id uuid.UUID) error {
	op, ok := x.Get(id)
	if !ok {
		return fmt.Errorf("unknown operation %s", id)
	}
	if !op.resumeRequested() {
		return fmt.Errorf("operation %s is not paused", id)
	}
	x.events.StateChanged(op.id, op.req.Kind, types.StateRunning)
	slog.Info("Operation resumed", "operation_id", id)
	return nil
}

// Cancel stops an operation at its next checkpoint. Completed work stays
// in place; the in-flight file's partial copy is removed. Cancelling a
// terminal operation has no effect.
func (x *Executor) Cancel(id uuid.UUID) error {
	op, ok := x.Get(id)
	if !ok {
		return fmt.Errorf("unknown operation %s", id)
	}
	op.cancel()
	slog.Info("Operation cancel requested", "operation_id", id)
	return nil
}

// ResolveConflict answers an operation parked on a destination collision.
// The policy must be concrete; answering ask with ask would park forever.
func (x *Executor) ResolveConflict(id uuid.UUID, res types.ConflictResolution) error {
	op, ok := x.Get(id)
	if !ok {
		return fmt.Errorf("unknown operation %s", id)
	}
	if res.Policy == "" || res.Policy == types.ConflictAsk {
		return errors.New("conflict resolution needs a concrete policy")
	}
	if !op.awaitingConflict.Load() {
		return fmt.Errorf("operation %s is not awaiting conflict resolution", id)
	}
	select {
	case op.resolutions <- res:
		return nil
	default:
		return fmt.Errorf("operation %s already has a pending resolution", id)
	}
}

// ConfirmPermanentDelete approves irreversible removal for a delete
// parked on an unavailable trash. Denial is expressed by cancelling the
// operation instead.
func (x *Executor) ConfirmPermanentDelete(id uuid.UUID) error {
	op, ok := x.Get(id)
	if !ok {
		return fmt.Errorf("unknown operation %s", id)
	}
	if op.req.Kind != types.OpDelete {
		return fmt.Errorf("operation %s is not a delete", id)
	}
	if !op.awaitingConfirm.Load() {
		return fmt.Errorf("operation %s is not awaiting delete confirmation", id)
	}
	select {
	case op.confirmations <- struct{}{}:
		return nil
	default:
		return fmt.Errorf("operation %s already has a pending confirmation", id)
	}
}

// Get returns the handle for id, terminal operations included.
func (x *Executor) Get(id uuid.UUID) (*Operation, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	op, ok := x.ops[id]
	return op, ok
}

// Operations returns every known operation in submission order.
func (x *Executor) Operations() []*Operation {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]*Operation, 0, len(x.order))
	for _, id := range x.order {
		out = append(out, x.ops[id])
	}
	return out
}

// watchForStall signals once per stall episode: counters frozen for the
// configured window while the operation is neither paused nor waiting on
// caller input.
func (x *Executor) watchForStall(op *Operation) func() {
	stopped := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(stopped) }) }

	interval := x.cfg.StallTimeout()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		lastSeen := op.progress.touched.Load()
		signaled := false
		for {
			select {
			case <-stopped:
				return
			case <-op.ctx.Done():
				return
			case <-ticker.C:
				cur := op.progress.touched.Load()
				if op.gate.isPaused() || op.awaitingInput() {
					lastSeen = cur
					signaled = false
					continue
				}
				if cur == lastSeen && !signaled {
					slog.Warn("Operation progress stalled", "operation_id", op.id, "interval", interval)
					x.events.Stalled(op.id, op.progress.snapshot())
					signaled = true
				} else if cur != lastSeen {
					signaled = false
				}
				lastSeen = cur
			}
		}
	}()
	return stop
}

// Close cancels every live operation and waits for their goroutines to
// drain. The executor refuses new submissions afterwards.
func (x *Executor) Close() {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return
	}
	x.closed = true
	x.mu.Unlock()

	x.stop()
	x.wg.Wait()
	slog.Debug("Executor closed")
}

func journalEntry(req Request, result types.OperationResult) journal.OperationEntry {
	var failed int64
	for _, item := range result.Items {
		if !item.Success && !item.Skipped {
			failed++
		}
	}

	source := ""
	if len(req.Sources) > 0 {
		source = req.Sources[0]
		if len(req.Sources) > 1 {
			source = fmt.Sprintf("%s (+%d more)", source, len(req.Sources)-1)
		}
	}
	target := req.Dest
	switch {
	case req.Name != "" && req.Dest != "":
		target = filepath.Join(req.Dest, req.Name)
	case req.Name != "":
		target = req.Name
	}

	return journal.OperationEntry{
		ID:          result.ID,
		Kind:        string(result.Kind),
		State:       string(result.State),
		Source:      source,
		Target:      target,
		BytesDone:   result.Progress.BytesDone,
		ItemsDone:   result.Progress.ItemsDone,
		ItemsFailed: failed,
		Error:       result.Error,
		StartedAt:   result.StartedAt,
		FinishedAt:  result.FinishedAt,
	}
}

func (x *Executor) recordTrash(op *Operation, rec trash.Record) {
	if x.journal == nil {
		return
	}
	if err := x.journal.RecordTrash(rec, op.id); err != nil {
		slog.Error("Failed to record trash entry", "operation_id", op.id, "path", rec.From, "error", err)
	}
}
