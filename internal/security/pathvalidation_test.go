package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	outDir := filepath.Join(tmpDir, "output")
	elsewhere := filepath.Join(tmpDir, "elsewhere")
	for _, d := range []string{outDir, elsewhere} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	link := filepath.Join(outDir, "escape")
	if err := os.Symlink(elsewhere, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	tests := []struct {
		name      string
		filePath  string
		wantError bool
	}{
		{"file directly inside", filepath.Join(outDir, "result.parquet"), false},
		{"nested file that does not exist yet", filepath.Join(outDir, "a", "b", "result.parquet"), false},
		{"dot-dot escape", filepath.Join(outDir, "..", "result.parquet"), true},
		{"absolute path elsewhere", filepath.Join(elsewhere, "result.parquet"), true},
		{"symlink escape", filepath.Join(link, "result.parquet"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tt.filePath, outDir)
			if tt.wantError && err == nil {
				t.Errorf("expected error for %s", tt.filePath)
			}
			if !tt.wantError && err != nil {
				t.Errorf("unexpected error for %s: %v", tt.filePath, err)
			}
		})
	}
}
