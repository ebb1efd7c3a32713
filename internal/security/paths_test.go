package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	safeDir := filepath.Join(tmpDir, "sessions")
	otherDir := filepath.Join(tmpDir, "other")
	for _, d := range []string{safeDir, otherDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("failed to create %s: %v", d, err)
		}
	}
	if err := os.Symlink(otherDir, filepath.Join(safeDir, "escape")); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in dir", filepath.Join(safeDir, "export.csv"), false},
		{"new nested file", filepath.Join(safeDir, "2026", "03", "export.csv"), false},
		{"dir itself", safeDir, false},
		{"dot dot", filepath.Join(safeDir, "..", "export.csv"), true},
		{"sibling", filepath.Join(otherDir, "export.csv"), true},
		{"through symlink", filepath.Join(safeDir, "escape", "export.csv"), true},
		{"absolute elsewhere", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.path, safeDir)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePathWithinDirectory(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePathWithinDirectory_MissingDir(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	if err := ValidatePathWithinDirectory(filepath.Join(missing, "a.csv"), missing); err == nil {
		t.Error("expected an error for a directory that does not exist")
	}
}

func TestValidateOutputPath(t *testing.T) {
	if err := ValidateOutputPath(filepath.Join(t.TempDir(), "session.csv")); err != nil {
		t.Errorf("temp dir path rejected: %v", err)
	}
	if err := ValidateOutputPath("session.csv"); err != nil {
		t.Errorf("relative path rejected: %v", err)
	}
	if err := ValidateOutputPath("/etc/pendulum.csv"); err == nil {
		t.Error("path outside cwd and temp dir accepted")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"pendulum.db", "pendulum.db"},
		{"wind log 2026/03/01", "wind_log_2026_03_01"},
		{"../../etc/passwd", "etc_passwd"},
		{"  ", "unknown"},
		{"", "unknown"},
		{"café-run_1", "caf_-run_1"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := SanitizeFilename(strings.Repeat("a", 300)); len(got) != 128 {
		t.Errorf("long name sanitised to %d bytes, want 128", len(got))
	}
}
