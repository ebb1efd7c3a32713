// Package security validates the file paths the commands write to.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// canonical resolves symlinks in path. For a path that does not exist yet,
// the nearest existing ancestor is resolved and the rest re-attached, so a
// symlinked parent directory cannot smuggle a new file elsewhere.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, err := filepath.Rel(dir, abs)
			if err != nil {
				return "", err
			}
			return filepath.Join(resolved, rel), nil
		}
		if dir == filepath.Dir(dir) {
			return abs, nil
		}
	}
}

// ValidatePathWithinDirectory returns an error if filePath, after cleaning
// and symlink resolution, lies outside dir.
func ValidatePathWithinDirectory(filePath, dir string) error {
	target, err := canonical(filePath)
	if err != nil {
		return err
	}
	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory %s: %w", dir, err)
	}
	if root, err = filepath.Abs(root); err != nil {
		return err
	}

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", filePath, dir)
	}
	return nil
}

// ValidateOutputPath accepts paths under the working directory or the
// system temp directory. Exports and reports are written through it.
func ValidateOutputPath(filePath string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	for _, dir := range []string{cwd, os.TempDir()} {
		if ValidatePathWithinDirectory(filePath, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("output path %s must be under %s or %s", filePath, cwd, os.TempDir())
}

// SanitizeFilename maps s onto ASCII letters, digits, dot, underscore and
// dash. Runs of other characters become one underscore and the result is
// capped at 128 bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128

	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
