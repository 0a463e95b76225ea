// Package safepath validates file names derived from untrusted URLs before
// they are written under an output directory.
package safepath

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/meigma/xferwatch/core"
)

// ValidatePath checks that path is relative, has no ".." component under
// either separator, and contains no null byte. An empty path is valid.
func ValidatePath(path string) error {
	switch {
	case containsNull(path):
		return fmt.Errorf("%w: null byte in %q", core.ErrPathTraversal, path)
	case isAbsolute(path):
		return fmt.Errorf("%w: absolute path %q", core.ErrPathTraversal, path)
	case containsTraversal(path):
		return fmt.Errorf("%w: %q", core.ErrPathTraversal, path)
	}
	return nil
}

// Join validates name and joins it to dir. The result always stays
// inside dir.
func Join(dir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", core.ErrPathTraversal)
	}
	if err := ValidatePath(name); err != nil {
		return "", err
	}
	joined := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes %q", core.ErrPathTraversal, name, dir)
	}
	return joined, nil
}

func containsNull(path string) bool {
	return strings.IndexByte(path, 0) >= 0
}

func containsTraversal(path string) bool {
	for part := range strings.FieldsFuncSeq(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if part == ".." {
			return true
		}
	}
	return false
}

func isAbsolute(path string) bool {
	if strings.HasPrefix(path, "/") || strings.HasPrefix(path, "\\") {
		return true
	}
	return filepath.IsAbs(path) || filepath.VolumeName(path) != ""
}
