package search

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/meridianfm/meridian/mfs/engine/common"
	"github.com/meridianfm/meridian/mfs/engine/types"
)

// matcher evaluates all filters of one query against an entry. Filters
// AND-compose; a zero filter dimension is unconstrained. Name patterns
// containing a separator match the slash-normalized path relative to the
// search root, bare patterns match the entry name.
type matcher struct {
	pattern     string
	pathPattern bool
	extensions  map[string]struct{}
	minSize     int64
	maxSize     int64
	after       time.Time
	before      time.Time
	kind        types.EntryKind
	content     []byte
	contentCap  int64

	files *common.FileUtils
}

func newMatcher(query types.SearchQuery, contentCap int64, files *common.FileUtils) (*matcher, error) {
	if query.NamePattern != "" && !doublestar.ValidatePattern(query.NamePattern) {
		return nil, common.WrapPath(common.KindInvalidName, query.NamePattern,
			fmt.Errorf("malformed glob pattern"))
	}

	m := &matcher{
		pattern:     query.NamePattern,
		pathPattern: strings.ContainsRune(query.NamePattern, '/'),
		minSize:     query.MinSize,
		maxSize:     query.MaxSize,
		after:       query.After,
		before:      query.Before,
		kind:        query.Kind,
		content:     []byte(query.Content),
		contentCap:  contentCap,
		files:       files,
	}

	if len(query.Extensions) > 0 {
		m.extensions = make(map[string]struct{}, len(query.Extensions))
		for _, ext := range query.Extensions {
			m.extensions[normalizeExt(ext)] = struct{}{}
		}
	}

	return m, nil
}

// normalizeExt lower-cases and dot-prefixes an extension so ".PDF", "pdf"
// and ".pdf" all mean the same filter.
func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// normalizedExtensions returns the filter's extension set in the dictionary
// form the index expects.
func (m *matcher) normalizedExtensions() []string {
	if len(m.extensions) == 0 {
		return nil
	}
	exts := make([]string, 0, len(m.extensions))
	for ext := range m.extensions {
		exts = append(exts, ext)
	}
	return exts
}

// matches evaluates every filter against entry. rel is the entry's path
// relative to the search root. A non-nil error means the entry could not be
// fully evaluated (unreadable content) and did not match.
func (m *matcher) matches(entry types.Entry, rel string) (bool, error) {
	if m.pattern != "" {
		target := entry.Name
		if m.pathPattern {
			target = filepath.ToSlash(rel)
		}
		if ok, _ := doublestar.Match(m.pattern, target); !ok {
			return false, nil
		}
	}

	if m.extensions != nil {
		if _, ok := m.extensions[entry.Extension]; !ok {
			return false, nil
		}
	}

	if m.minSize > 0 && entry.Size < m.minSize {
		return false, nil
	}
	if m.maxSize > 0 && entry.Size > m.maxSize {
		return false, nil
	}

	if !m.after.IsZero() && entry.ModifiedAt.Before(m.after) {
		return false, nil
	}
	if !m.before.IsZero() && entry.ModifiedAt.After(m.before) {
		return false, nil
	}

	if m.kind != "" && entry.Kind != m.kind {
		return false, nil
	}

	if len(m.content) > 0 {
		return m.matchesContent(entry)
	}

	return true, nil
}

// matchesContent reports whether the entry is a text file under the size
// cap containing the query substring. The cap bounds the read, so whole
// files are loaded rather than scanned line by line.
func (m *matcher) matchesContent(entry types.Entry) (bool, error) {
	if entry.Kind != types.KindFile {
		return false, nil
	}
	if !m.files.IsTextExtension(entry.Extension) {
		return false, nil
	}
	if m.contentCap > 0 && entry.Size > m.contentCap {
		return false, nil
	}

	data, err := os.ReadFile(entry.Path)
	if err != nil {
		return false, fmt.Errorf("failed to read content of %s: %w", entry.Path, err)
	}
	return bytes.Contains(data, m.content), nil
}
