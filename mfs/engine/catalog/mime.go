package catalog

import (
	"github.com/gabriel-vasile/mimetype"
)

// DetectMIME sniffs the MIME type from file content. Detection reads a
// bounded prefix of the file, so it is safe to call on large files, but it
// is still an extra open per entry; listing only calls it on demand.
func (c *Catalog) DetectMIME(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", err
	}
	return mt.String(), nil
}
