package workspace

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// MemoryWorkspace is the name of the process-wide in-memory workspace.
const MemoryWorkspace = "memory"

const workspaceExt = ".gdb"

var layerNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Path addresses a layer inside a workspace.
type Path struct {
	// Workspace is MemoryWorkspace or the cleaned path of a .gdb file.
	Workspace string
	Name      string
}

// ParsePath splits "memory/<name>" or "<dir>/<file>.gdb/<name>" into its
// workspace and layer name. Backslash separators are accepted.
func ParsePath(p string) (Path, error) {
	norm := strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	i := strings.LastIndex(norm, "/")
	if i <= 0 || i == len(norm)-1 {
		return Path{}, fmt.Errorf("%w: %q must be <workspace>/<layer>", ErrInvalidPath, p)
	}
	ws, name := norm[:i], norm[i+1:]
	if !layerNamePattern.MatchString(name) {
		return Path{}, fmt.Errorf("%w: invalid layer name %q", ErrInvalidPath, name)
	}
	ws, err := ParseWorkspace(ws)
	if err != nil {
		return Path{}, err
	}
	return Path{Workspace: ws, Name: name}, nil
}

// ParseWorkspace validates and normalises a workspace designator.
func ParseWorkspace(ws string) (string, error) {
	norm := strings.ReplaceAll(strings.TrimSpace(ws), `\`, "/")
	if strings.EqualFold(norm, MemoryWorkspace) {
		return MemoryWorkspace, nil
	}
	if !strings.EqualFold(filepath.Ext(norm), workspaceExt) {
		return "", fmt.Errorf("%w: workspace %q must be %q or a %s file", ErrInvalidPath, ws, MemoryWorkspace, workspaceExt)
	}
	return filepath.Clean(filepath.FromSlash(norm)), nil
}

func (p Path) String() string {
	return filepath.ToSlash(p.Workspace) + "/" + p.Name
}
