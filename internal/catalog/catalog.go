// Package catalog describes demographic variables and selects them by name.
package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

// EnrichSeparator joins enrichment identifiers into a single argument.
const EnrichSeparator = ";"

// Variable is one entry of a provider's variable catalog.
type Variable struct {
	// Name is the short catalog name matched by Filter, e.g. "THH01".
	Name string
	// EnrichName identifies the variable to the enrichment step,
	// e.g. "householdincome.THH01".
	EnrichName string
	// FieldName is the attribute name enrichment writes, e.g. "THH01".
	FieldName      string
	Alias          string
	DataCollection string
}

// Filter returns the variables whose Name matches pattern at its start, in
// catalog order. The result is never nil.
func Filter(vars []Variable, pattern string) ([]Variable, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return nil, fmt.Errorf("invalid variable pattern %q: %w", pattern, err)
	}
	out := make([]Variable, 0, len(vars))
	for _, v := range vars {
		if re.MatchString(v.Name) {
			out = append(out, v)
		}
	}
	return out, nil
}

// EnrichNames returns the EnrichName of each variable.
func EnrichNames(vars []Variable) []string {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.EnrichName
	}
	return names
}

// FieldNames returns the FieldName of each variable.
func FieldNames(vars []Variable) []string {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.FieldName
	}
	return names
}

// JoinEnrichNames joins the enrichment identifiers with EnrichSeparator.
func JoinEnrichNames(vars []Variable) string {
	return strings.Join(EnrichNames(vars), EnrichSeparator)
}

// SplitEnrichNames is the inverse of JoinEnrichNames. Empty input yields an
// empty list.
func SplitEnrichNames(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	parts := strings.Split(s, EnrichSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
