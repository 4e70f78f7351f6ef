package workspace

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		in        string
		workspace string
		name      string
	}{
		{"memory/States", MemoryWorkspace, "States"},
		{"MEMORY/DissolvedStates", MemoryWorkspace, "DissolvedStates"},
		{"output/demo.gdb/script_result_hexbins", filepath.FromSlash("output/demo.gdb"), "script_result_hexbins"},
		{`output\demo.gdb\script_result_hexbins_enriched`, filepath.FromSlash("output/demo.gdb"), "script_result_hexbins_enriched"},
		{"a/./b/../x.GDB/L1", filepath.FromSlash("a/x.GDB"), "L1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParsePath(tt.in)
			if err != nil {
				t.Fatalf("ParsePath(%q): %v", tt.in, err)
			}
			if p.Workspace != tt.workspace || p.Name != tt.name {
				t.Errorf("ParsePath(%q) = %+v, want {%s %s}", tt.in, p, tt.workspace, tt.name)
			}
		})
	}
}

func TestParsePath_Invalid(t *testing.T) {
	for _, in := range []string{
		"",
		"States",
		"memory/",
		"/States",
		"output/demo.sqlite/layer",
		"memory/9lives",
		"memory/has space",
		"memory/drop;table",
	} {
		if _, err := ParsePath(in); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("ParsePath(%q) error = %v, want ErrInvalidPath", in, err)
		}
	}
}

func TestPath_String(t *testing.T) {
	p, err := ParsePath(`out\x.gdb\grid`)
	if err != nil {
		t.Fatal(err)
	}
	if got := p.String(); got != "out/x.gdb/grid" {
		t.Errorf("String() = %q", got)
	}
	if p.Workspace == MemoryWorkspace {
		t.Error("file workspace parsed as memory")
	}
}
