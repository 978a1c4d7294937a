package executor

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
)

// totals is what the pre-pass accumulates per source and for the whole
// operation: item count covers every filesystem object, bytes cover
// regular file content only.
type totals struct {
	bytes int64
	items int64
}

// computeTotals walks every source before the item loop starts so progress
// has denominators. Unreadable entries are skipped; a source that cannot be
// walked at all contributes nothing and fails later in the item loop, where
// it is reported per item. Only cancellation aborts the pre-pass.
func computeTotals(ctx context.Context, sources []string, workers int) (totals, map[string]totals, error) {
	conf := fastwalk.Config{Follow: false, NumWorkers: workers}
	perSource := make(map[string]totals, len(sources))
	var grand totals

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return totals{}, nil, err
		}

		var bytes, items atomic.Int64
		err := fastwalk.Walk(&conf, src, func(path string, d os.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err != nil {
				slog.Debug("Skipping unreadable entry in pre-pass", "path", path, "error", err)
				return nil
			}
			items.Add(1)
			if d.Type().IsRegular() {
				if info, ierr := d.Info(); ierr == nil {
					bytes.Add(info.Size())
				}
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return totals{}, nil, ctx.Err()
			}
			slog.Debug("Pre-pass could not walk source", "path", src, "error", err)
			continue
		}

		t := totals{bytes: bytes.Load(), items: items.Load()}
		perSource[src] = t
		grand.bytes += t.bytes
		grand.items += t.items
	}
	return grand, perSource, nil
}
