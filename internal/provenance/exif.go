package provenance

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// MetadataReader returns the raw capture timestamp string embedded in a file.
type MetadataReader interface {
	CaptureTime(ctx context.Context, path string) (string, error)
}

// EXIFReader reads capture time from the EXIF block of JPEG and TIFF files.
type EXIFReader struct{}

// CaptureTime prefers DateTimeOriginal and falls back to DateTime.
func (EXIFReader) CaptureTime(_ context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return "", fmt.Errorf("%w: %v", ErrNoTimestamp, err)
	}

	for _, field := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime} {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		val, err := tag.StringVal()
		if err != nil {
			continue
		}
		if val = strings.TrimSpace(val); val != "" {
			return val, nil
		}
	}
	return "", ErrNoTimestamp
}
