package provenance

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// ErrNoTimestamp means the file carries no usable capture time.
var ErrNoTimestamp = errors.New("capture timestamp not found")

const exifLayout = "2006:01:02 15:04:05"

// Sub-second and offset suffixes written by some cameras are ignored.
var exifTimestamp = regexp.MustCompile(`^(\d{4}:\d{2}:\d{2} \d{2}:\d{2}:\d{2})`)

// ParseTimestamp reads a naive EXIF timestamp as wall time in loc.
func ParseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	m := exifTimestamp.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: unrecognized value %q", ErrNoTimestamp, raw)
	}
	t, err := time.ParseInLocation(exifLayout, m[1], loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrNoTimestamp, err)
	}
	return t, nil
}
