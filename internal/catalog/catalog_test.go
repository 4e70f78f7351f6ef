package catalog

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testCatalog() []Variable {
	return []Variable{
		{Name: "TOTPOP", EnrichName: "population.TOTPOP", FieldName: "TOTPOP"},
		{Name: "THH01", EnrichName: "householdincome.THH01", FieldName: "THH01"},
		{Name: "THH02", EnrichName: "householdincome.THH02", FieldName: "THH02"},
		{Name: "THHBASE", EnrichName: "householdincome.THHBASE", FieldName: "THHBASE"},
		{Name: "XTHH03", EnrichName: "other.XTHH03", FieldName: "XTHH03"},
		{Name: "THH17", EnrichName: "householdincome.THH17", FieldName: "THH17"},
		{Name: "THH170", EnrichName: "householdincome.THH170", FieldName: "THH170"},
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    []string
	}{
		// Anchored at the start only, like a prefix match.
		{"two digit income bands", "THH[0-9][0-9]", []string{"THH01", "THH02", "THH17", "THH170"}},
		{"empty pattern matches all", "", []string{"TOTPOP", "THH01", "THH02", "THHBASE", "XTHH03", "THH17", "THH170"}},
		{"alternation anchored as a whole", "TOT|XTHH", []string{"TOTPOP", "XTHH03"}},
		{"no matches", "ZZZ", []string{}},
		{"explicit end anchor", "THH[0-9][0-9]$", []string{"THH01", "THH02", "THH17"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Filter(testCatalog(), tt.pattern)
			if err != nil {
				t.Fatalf("Filter(%q): %v", tt.pattern, err)
			}
			if got == nil {
				t.Fatal("Filter returned nil slice")
			}
			names := make([]string, len(got))
			for i, v := range got {
				names[i] = v.Name
			}
			if diff := cmp.Diff(tt.want, names); diff != "" {
				t.Errorf("Filter(%q) mismatch (-want +got):\n%s", tt.pattern, diff)
			}
		})
	}
}

func TestFilter_InvalidPattern(t *testing.T) {
	if _, err := Filter(testCatalog(), "THH[0-9"); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestNameHelpers(t *testing.T) {
	vars, err := Filter(testCatalog(), "THH0")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"THH01", "THH02"}, FieldNames(vars)); diff != "" {
		t.Errorf("FieldNames mismatch:\n%s", diff)
	}
	joined := JoinEnrichNames(vars)
	if joined != "householdincome.THH01;householdincome.THH02" {
		t.Errorf("JoinEnrichNames = %q", joined)
	}
	if diff := cmp.Diff(EnrichNames(vars), SplitEnrichNames(joined)); diff != "" {
		t.Errorf("SplitEnrichNames mismatch:\n%s", diff)
	}

	if got := JoinEnrichNames(nil); got != "" {
		t.Errorf("JoinEnrichNames(nil) = %q, want empty", got)
	}
	if got := SplitEnrichNames(" "); len(got) != 0 || got == nil {
		t.Errorf("SplitEnrichNames(blank) = %#v, want empty non-nil", got)
	}
	if got := SplitEnrichNames("a; ;b;"); !cmp.Equal(got, []string{"a", "b"}) {
		t.Errorf("SplitEnrichNames skips blanks, got %v", got)
	}
}
