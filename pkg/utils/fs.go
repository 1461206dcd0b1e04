package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrNoResults is returned when a project has no numbered results directory.
var ErrNoResults = errors.New("no results directory found")

// LatestResultsDir returns the highest-numbered results/<n> directory in a
// project and its run number.
func LatestResultsDir(projectPath string) (string, int, error) {
	base := filepath.Join(projectPath, "results")
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, fmt.Errorf("%s: %w", base, ErrNoResults)
		}
		return "", 0, fmt.Errorf("failed to read %s: %w", base, err)
	}

	best := -1
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		n, err := strconv.Atoi(entry.Name())
		if err != nil || n < 0 {
			continue
		}
		if n > best {
			best = n
		}
	}
	if best < 0 {
		return "", 0, fmt.Errorf("%s: %w", base, ErrNoResults)
	}
	return filepath.Join(base, strconv.Itoa(best)), best, nil
}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
