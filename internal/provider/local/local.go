// Package local implements provider.Provider on top of SQLite data sources
// and workspaces, so a pipeline can run without an external GIS toolkit.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/hexenrich/internal/datasource"
	"github.com/banshee-data/hexenrich/internal/provider"
	"github.com/banshee-data/hexenrich/internal/timeutil"
	"github.com/banshee-data/hexenrich/internal/workspace"
)

// Kind is the data source kind this provider serves.
const Kind = "LOCAL"

// Provider runs every geoprocessing step locally.
type Provider struct {
	ws         *workspace.Manager
	env        *provider.MemoryEnv
	dataRoot   string
	projection string
	clock      timeutil.Clock

	mu       sync.Mutex
	messages []string
	sources  map[string]*datasource.Source
}

var _ provider.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithProjection sets the proj4 definition boundaries are projected into
// when resolved. Empty keeps the data source's coordinates.
func WithProjection(srs string) Option {
	return func(p *Provider) { p.projection = srs }
}

// WithClock sets the clock used for message timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(p *Provider) { p.clock = c }
}

// New returns a Provider that stores layers in ws and looks data sources up
// as <dataRoot>/<dataset>.sqlite.
func New(ws *workspace.Manager, dataRoot string, opts ...Option) *Provider {
	p := &Provider{
		ws:       ws,
		env:      &provider.MemoryEnv{},
		dataRoot: dataRoot,
		clock:    timeutil.RealClock{},
		sources:  make(map[string]*datasource.Source),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Close closes every data source the provider opened.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for path, s := range p.sources {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.sources, path)
	}
	return firstErr
}

func (p *Provider) Env() provider.Env {
	return p.env
}

func (p *Provider) Messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.messages))
	copy(out, p.messages)
	return out
}

// DataSourcePath returns the file a data source setting resolves to.
func (p *Provider) DataSourcePath(setting string) (string, error) {
	if setting == "" {
		return "", provider.ErrNoDataSource
	}
	ds, err := provider.ParseDataSource(setting)
	if err != nil {
		return "", err
	}
	if ds.Kind != Kind {
		return "", fmt.Errorf("%w: kind %q (this provider serves %s)", provider.ErrUnsupportedDataSource, ds.Kind, Kind)
	}
	if strings.ContainsAny(ds.Dataset, `/\`) || ds.Dataset == ".." {
		return "", fmt.Errorf("%w: dataset %q must be a plain name", provider.ErrUnsupportedDataSource, ds.Dataset)
	}
	return filepath.Join(p.dataRoot, ds.Dataset+datasource.Extension), nil
}

// source opens the data source named by the current environment.
func (p *Provider) source() (*datasource.Source, error) {
	path, err := p.DataSourcePath(p.env.DataSource())
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sources[path]; ok {
		return s, nil
	}
	s, err := datasource.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found", provider.ErrUnsupportedDataSource, path)
		}
		return nil, err
	}
	p.sources[path] = s
	return s, nil
}

// run executes one tool call, resetting and filling the message list the
// way a geoprocessing tool reports progress.
func (p *Provider) run(tool string, fn func() error) error {
	start := p.clock.Now()
	p.mu.Lock()
	p.messages = []string{fmt.Sprintf("Start Time: %s", start.Format(time.ANSIC))}
	p.mu.Unlock()

	err := fn()

	end := p.clock.Now()
	if err != nil {
		p.note("ERROR: %v", err)
		p.note("Failed to execute (%s).", tool)
		return err
	}
	p.note("Succeeded at %s (Elapsed Time: %.2f seconds)", end.Format(time.ANSIC), end.Sub(start).Seconds())
	return nil
}

func (p *Provider) note(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, fmt.Sprintf(format, args...))
}

// prepareOutput fails when out already exists; the caller owns deletion.
func (p *Provider) prepareOutput(ctx context.Context, out string) error {
	exists, err := p.ws.Exists(ctx, out)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", workspace.ErrLayerExists, out)
	}
	return nil
}
