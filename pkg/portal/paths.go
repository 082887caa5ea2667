package portal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// targetDir expands a leading ~ and returns dir as a clean absolute path.
func targetDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("download directory cannot be empty")
	}

	expanded := dir
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand ~: %w", err)
		}
		expanded = filepath.Join(home, strings.TrimPrefix(dir[1:], "/"))
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("failed to resolve download directory: %w", err)
	}
	return filepath.Clean(abs), nil
}

// entryPath joins name onto dir. Names that would resolve outside dir, or
// into a subdirectory of it, are rejected.
func entryPath(dir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("file name cannot be empty")
	}

	path := filepath.Join(dir, name)
	if filepath.Dir(path) != dir {
		return "", fmt.Errorf("file name %q is outside the download directory", name)
	}
	return path, nil
}

// partialPath is where an export is saved before it replaces path, so an
// earlier copy survives until a new one is complete.
func partialPath(path string) string {
	return filepath.Join(filepath.Dir(path), ".partial-"+filepath.Base(path))
}
