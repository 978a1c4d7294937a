package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
)

// ErrTooManyEntries is returned when a tree exceeds the configured entry
// cap. Callers treat it as "do not accelerate this root" rather than a
// failure.
var ErrTooManyEntries = errors.New("tree exceeds indexable entry limit")

// Scan walks root and produces records in lexical path order, ready for
// Build. Unreadable entries are skipped; only a failure to walk at all is
// an error. maxEntries caps the scan when positive.
func Scan(ctx context.Context, root string, maxEntries int) ([]Record, []string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve scan root %s: %w", root, err)
	}
	absRoot = filepath.Clean(absRoot)

	type rawEntry struct {
		rec Record
		ext string
	}

	var (
		mu  sync.Mutex
		raw []rawEntry
	)

	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, absRoot, func(p string, d os.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return nil
		}
		entry := rawEntry{
			rec: Record{
				Path:    p,
				Name:    d.Name(),
				ModTime: info.ModTime().Unix(),
				IsDir:   info.IsDir(),
				Depth:   relDepth(rel),
			},
		}
		if !entry.rec.IsDir {
			entry.rec.Size = info.Size()
			entry.ext = strings.ToLower(filepath.Ext(d.Name()))
		}

		mu.Lock()
		defer mu.Unlock()
		raw = append(raw, entry)
		if maxEntries > 0 && len(raw) > maxEntries {
			return ErrTooManyEntries
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrTooManyEntries) {
			return nil, nil, ErrTooManyEntries
		}
		return nil, nil, fmt.Errorf("failed to scan %s: %w", absRoot, err)
	}

	sort.Slice(raw, func(i, j int) bool { return raw[i].rec.Path < raw[j].rec.Path })

	// Lexical order puts parents before children, so hidden state can be
	// propagated down in one pass. The root itself never counts as hidden;
	// it is the universe of this index.
	hiddenDirs := make(map[string]bool)
	extDict := []string{""}
	extToID := map[string]uint32{"": 0}

	records := make([]Record, len(raw))
	for i := range raw {
		rec := raw[i].rec
		if rec.Path != absRoot {
			rec.Hidden = strings.HasPrefix(rec.Name, ".") || hiddenDirs[filepath.Dir(rec.Path)]
		}
		if rec.IsDir && rec.Hidden {
			hiddenDirs[rec.Path] = true
		}
		if !rec.IsDir {
			id, ok := extToID[raw[i].ext]
			if !ok {
				id = uint32(len(extDict))
				extDict = append(extDict, raw[i].ext)
				extToID[raw[i].ext] = id
			}
			rec.ExtID = id
		}
		records[i] = rec
	}
	return records, extDict, nil
}

// relDepth counts path components below the root; the root itself is 0.
func relDepth(rel string) uint16 {
	if rel == "." {
		return 0
	}
	return uint16(strings.Count(filepath.ToSlash(rel), "/") + 1)
}
