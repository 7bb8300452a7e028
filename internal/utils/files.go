package utils

import (
	"errors"
	"os"
)

// RemoveFiles deletes every non-empty path, ignoring files that are already gone.
func RemoveFiles(paths ...string) error {
	var errs []error
	seen := make(map[string]bool, len(paths))
	for _, p := range paths {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
