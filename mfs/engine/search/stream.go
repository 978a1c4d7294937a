package search

import (
	"context"
	"log/slog"
	"sync"

	"github.com/meridianfm/meridian/mfs/engine/types"
)

// ResultStream delivers matches as the traversal finds them. Results and
// Warnings close when the search ends; Done closes last, after which Err
// reports why the search stopped early, if it did. Cancelling stops new
// filesystem reads while entries already matched stay readable from the
// channel buffer.
type ResultStream struct {
	results  chan types.Entry
	warnings chan types.SearchWarning
	done     chan struct{}
	cancel   context.CancelFunc

	mu  sync.Mutex
	err error
}

func newResultStream(cancel context.CancelFunc, resultBuffer, warnBuffer int) *ResultStream {
	return &ResultStream{
		results:  make(chan types.Entry, resultBuffer),
		warnings: make(chan types.SearchWarning, warnBuffer),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
}

// Results is the stream of matched entries, in traversal order.
func (s *ResultStream) Results() <-chan types.Entry { return s.results }

// Warnings reports non-fatal problems, such as skipped permission-denied
// directories.
func (s *ResultStream) Warnings() <-chan types.SearchWarning { return s.warnings }

// Done closes when the search has fully terminated.
func (s *ResultStream) Done() <-chan struct{} { return s.done }

// Err reports why the search stopped before exhausting the traversal. It is
// nil after a complete run and context.Canceled after Cancel. Meaningful
// once Done is closed.
func (s *ResultStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel stops the search. Entries already matched remain delivered.
func (s *ResultStream) Cancel() { s.cancel() }

// emit delivers one match, reporting false when the search context ended
// before the consumer took it.
func (s *ResultStream) emit(ctx context.Context, entry types.Entry) bool {
	select {
	case s.results <- entry:
		return true
	case <-ctx.Done():
		s.fail(ctx.Err())
		return false
	}
}

// warn reports a non-fatal problem. Warnings are advisory and are dropped
// rather than stalling the traversal when the consumer falls behind.
func (s *ResultStream) warn(path string, err error) {
	w := types.SearchWarning{Path: path, Err: err.Error()}
	select {
	case s.warnings <- w:
	default:
		slog.Warn("Search warning buffer full, dropping warning", "path", path, "error", err)
	}
}

func (s *ResultStream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// finish closes the stream exactly once, run by the traversal goroutine on
// its way out.
func (s *ResultStream) finish() {
	close(s.results)
	close(s.warnings)
	close(s.done)
}
