package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	exiflib "github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/meridianfm/meridian/mfs/engine/types"
)

// mediaExtensions are the formats goexif can decode.
var mediaExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
	".tif":  true,
}

// HasMediaMetadata reports whether path looks like a file the metadata
// decoder understands, without opening it.
func (c *Catalog) HasMediaMetadata(path string) bool {
	return mediaExtensions[strings.ToLower(filepath.Ext(path))]
}

// MediaMetadata decodes EXIF fields from an image file. Missing fields are
// left zero; only a failure to open or decode the file is an error.
func (c *Catalog) MediaMetadata(path string) (types.MediaMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.MediaMetadata{}, fmt.Errorf("failed to open media file %s: %w", path, err)
	}
	defer f.Close()

	x, err := exiflib.Decode(f)
	if err != nil {
		return types.MediaMetadata{}, fmt.Errorf("failed to decode metadata for %s: %w", path, err)
	}

	var meta types.MediaMetadata

	if dt, err := x.DateTime(); err == nil {
		meta.CapturedAt = dt
	}
	if lat, long, err := x.LatLong(); err == nil {
		meta.Latitude = lat
		meta.Longitude = long
		meta.HasGPS = true
	}
	if tag, err := x.Get(exiflib.Model); err == nil {
		if model, err := tag.StringVal(); err == nil {
			meta.CameraModel = strings.TrimSpace(model)
		}
	}

	return meta, nil
}

// MediaFields walks every decoded EXIF tag into a flat map for display
// panes that show the full tag listing.
func (c *Catalog) MediaFields(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open media file %s: %w", path, err)
	}
	defer f.Close()

	x, err := exiflib.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", path, err)
	}

	walker := &fieldWalker{fields: make(map[string]string)}
	if err := x.Walk(walker); err != nil {
		return nil, fmt.Errorf("failed to walk metadata for %s: %w", path, err)
	}
	return walker.fields, nil
}

type fieldWalker struct {
	fields map[string]string
}

func (w *fieldWalker) Walk(name exiflib.FieldName, tag *tiff.Tag) error {
	w.fields[string(name)] = tag.String()
	return nil
}
