package provenance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

var commandContext = exec.CommandContext

// ExifToolReader reads container metadata by running exiftool.
type ExifToolReader struct {
	Binary string
}

type exiftoolRecord struct {
	DateTimeOriginal string `json:"DateTimeOriginal"`
	CreateDate       string `json:"CreateDate"`
}

// CaptureTime returns DateTimeOriginal, or CreateDate when the former is empty.
func (r ExifToolReader) CaptureTime(ctx context.Context, path string) (string, error) {
	binary := r.Binary
	if binary == "" {
		binary = "exiftool"
	}

	var stdout, stderr bytes.Buffer
	cmd := commandContext(ctx, binary, "-json", "-DateTimeOriginal", "-CreateDate", path) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: exiftool: %v: %s", ErrNoTimestamp, err, strings.TrimSpace(stderr.String()))
	}

	var records []exiftoolRecord
	if err := json.Unmarshal(stdout.Bytes(), &records); err != nil {
		return "", fmt.Errorf("%w: parse exiftool output: %v", ErrNoTimestamp, err)
	}
	if len(records) == 0 {
		return "", ErrNoTimestamp
	}
	for _, val := range []string{records[0].DateTimeOriginal, records[0].CreateDate} {
		if val = strings.TrimSpace(val); val != "" {
			return val, nil
		}
	}
	return "", ErrNoTimestamp
}
