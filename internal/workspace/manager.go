package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ctessum/geom"
)

// Manager resolves layer paths to workspace databases and keeps them open
// for the life of the process. It is safe for concurrent use, although the
// pipeline drives it from a single goroutine.
type Manager struct {
	mu     sync.Mutex
	stores map[string]*store
}

func NewManager() *Manager {
	return &Manager{stores: make(map[string]*store)}
}

// Close closes every open workspace. The in-memory workspace is discarded.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for ws, s := range m.stores {
		if err := s.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close workspace %s: %w", ws, err)
		}
		delete(m.stores, ws)
	}
	return firstErr
}

// open returns the store for ws. When create is false and ws is a file
// workspace that does not exist yet, it returns nil without creating it.
func (m *Manager) open(ws string, create bool) (*store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stores[ws]; ok {
		return s, nil
	}
	if ws != MemoryWorkspace {
		if _, err := os.Stat(ws); os.IsNotExist(err) {
			if !create {
				return nil, nil
			}
			if err := os.MkdirAll(filepath.Dir(ws), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create workspace directory: %w", err)
			}
		}
	}
	s, err := openStore(ws)
	if err != nil {
		return nil, err
	}
	m.stores[ws] = s
	return s, nil
}

func (m *Manager) resolve(path string, create bool) (Path, *store, error) {
	p, err := ParsePath(path)
	if err != nil {
		return Path{}, nil, err
	}
	s, err := m.open(p.Workspace, create)
	if err != nil {
		return Path{}, nil, err
	}
	return p, s, nil
}

// Exists reports whether the layer at path exists.
func (m *Manager) Exists(ctx context.Context, path string) (bool, error) {
	p, s, err := m.resolve(path, false)
	if err != nil || s == nil {
		return false, err
	}
	return s.exists(ctx, p.Name)
}

// Delete removes the layer at path. Deleting an absent layer is not an error.
func (m *Manager) Delete(ctx context.Context, path string) error {
	p, s, err := m.resolve(path, false)
	if err != nil || s == nil {
		return err
	}
	return s.delete(ctx, p.Name)
}

// CreateLayer writes layer at path, creating the workspace if needed.
// layer.Name is replaced by the name in path. It fails with ErrLayerExists
// when a layer of that name is already present; a failure part way through
// leaves no layer behind.
func (m *Manager) CreateLayer(ctx context.Context, path string, layer *Layer) error {
	p, s, err := m.resolve(path, true)
	if err != nil {
		return err
	}
	l := *layer
	l.Name = p.Name
	return s.create(ctx, &l)
}

// ReadLayer loads the layer at path with all of its features.
func (m *Manager) ReadLayer(ctx context.Context, path string) (*Layer, error) {
	p, s, err := m.resolve(path, false)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, path)
	}
	return s.read(ctx, p.Name)
}

// Describe returns the layer at path with its schema but no features.
func (m *Manager) Describe(ctx context.Context, path string) (*Layer, error) {
	p, s, err := m.resolve(path, false)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrLayerNotFound, path)
	}
	return s.schema(ctx, p.Name)
}

// Layers lists the layer names of a workspace in name order.
func (m *Manager) Layers(ctx context.Context, workspace string) ([]string, error) {
	ws, err := ParseWorkspace(workspace)
	if err != nil {
		return nil, err
	}
	s, err := m.open(ws, false)
	if err != nil || s == nil {
		return nil, err
	}
	return s.names(ctx)
}

// UpdateGeometries replaces the geometry of every feature of the layer at
// path with the result of fn, in place and in one transaction.
func (m *Manager) UpdateGeometries(ctx context.Context, path string, fn func(Feature) (geom.Polygonal, error)) error {
	layer, err := m.ReadLayer(ctx, path)
	if err != nil {
		return err
	}
	geoms := make(map[int64]geom.Polygonal, len(layer.Features))
	for _, f := range layer.Features {
		g, err := fn(f)
		if err != nil {
			return fmt.Errorf("feature %d: %w", f.FID, err)
		}
		geoms[f.FID] = g
	}

	p, s, err := m.resolve(path, false)
	if err != nil {
		return err
	}
	return s.updateGeometries(ctx, p.Name, geoms)
}
