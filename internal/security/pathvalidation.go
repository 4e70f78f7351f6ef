// Package security validates user-supplied output paths.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory checks that filePath resolves inside baseDir.
// Symlinks are resolved on the longest existing prefix of each path, so an
// output file that does not exist yet is still checked against where its
// parent directory really points.
func ValidatePathWithinDirectory(filePath, baseDir string) error {
	target, err := canonical(filePath)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", filePath, err)
	}
	base, err := canonical(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory %s: %w", baseDir, err)
	}

	rel, err := filepath.Rel(base, target)
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", baseDir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", filePath, baseDir)
	}
	return nil
}

// canonical returns the absolute path of p with symlinks resolved on the
// longest prefix that exists.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", err
	}
	var missing []string
	cur := abs
	for {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			parts := append([]string{resolved}, missing...)
			return filepath.Join(parts...), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		missing = append([]string{filepath.Base(cur)}, missing...)
		cur = parent
	}
}
