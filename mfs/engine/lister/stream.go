package lister

import (
	"context"
	"os"
	"path/filepath"

	"github.com/meridianfm/meridian/mfs/engine/catalog"
	"github.com/meridianfm/meridian/mfs/engine/common"
	"github.com/meridianfm/meridian/mfs/engine/types"
)

// EntryStream is a lazy, name-ordered sequence over one directory. Each
// Next call resolves at most one entry from the filesystem. Entries that
// vanish between the directory read and their stat are skipped silently.
type EntryStream struct {
	ctx        context.Context
	catalog    *catalog.Catalog
	dir        string
	names      []string
	showHidden bool
	generation uint64
	pos        int
	err        error
}

// Next returns the next entry, or false when the sequence is exhausted,
// cancelled, or failed. After false, Err distinguishes exhaustion from
// failure.
func (s *EntryStream) Next() (types.Entry, bool) {
	for {
		select {
		case <-s.ctx.Done():
			s.err = s.ctx.Err()
			return types.Entry{}, false
		default:
		}
		if s.pos >= len(s.names) {
			return types.Entry{}, false
		}
		name := s.names[s.pos]
		s.pos++

		entry, err := s.catalog.Stat(filepath.Join(s.dir, name))
		if err != nil {
			continue
		}
		if !s.showHidden && entry.Hidden {
			continue
		}
		return entry, true
	}
}

// Err reports why the stream stopped early, nil on normal exhaustion.
func (s *EntryStream) Err() error { return s.err }

// Remaining reports how many names have not been resolved yet. It is an
// upper bound; hidden or vanished entries still reduce it without being
// yielded.
func (s *EntryStream) Remaining() int { return len(s.names) - s.pos }

// Generation is the listing generation assigned when the stream was opened.
func (s *EntryStream) Generation() uint64 { return s.generation }

// readNames returns the bare child names of dir without stat'ing them.
func readNames(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, common.Classify(dir, err)
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, common.Classify(dir, err)
	}
	return names, nil
}
