package jobs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ScratchJanitor removes downloaded photos that outlived their conversation,
// e.g. after a crash between download and cleanup.
type ScratchJanitor struct {
	dir      string
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewScratchJanitor creates a janitor for dir.
func NewScratchJanitor(dir string, interval, maxAge time.Duration, log *zap.Logger) *ScratchJanitor {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &ScratchJanitor{
		dir:      dir,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
		log:      log,
	}
}

// Run sweeps once at start and then every interval until ctx is done.
func (j *ScratchJanitor) Run(ctx context.Context) error {
	j.log.Info("scratch janitor started",
		zap.String("dir", j.dir),
		zap.Duration("interval", j.interval),
		zap.Duration("max_age", j.maxAge))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if _, err := j.Sweep(); err != nil {
			j.log.Warn("scratch sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			j.log.Info("scratch janitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep deletes regular files in the scratch directory older than maxAge and
// returns how many were removed. A missing directory is not an error.
func (j *ScratchJanitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.dir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		j.log.Info("removed stale scratch files", zap.Int("count", removed))
	}
	return removed, errors.Join(errs...)
}
