// Package pipeline drives a tessellate-and-enrich run: resolve the regions,
// merge and simplify them, cover them with grid cells, enrich the cells and
// export the result as a table.
//
// Every geoprocessing step is delegated to a provider.Provider. The
// pipeline owns the artifact lifecycle (stale layers and the output file are
// deleted before they are recreated), progress logging and the run log.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/hexenrich/internal/catalog"
	"github.com/banshee-data/hexenrich/internal/config"
	"github.com/banshee-data/hexenrich/internal/fsutil"
	"github.com/banshee-data/hexenrich/internal/monitoring"
	"github.com/banshee-data/hexenrich/internal/provider"
	"github.com/banshee-data/hexenrich/internal/security"
	"github.com/banshee-data/hexenrich/internal/timeutil"
	"github.com/banshee-data/hexenrich/internal/workspace"
)

// GridIDField is the cell identifier column, always first in the output.
const GridIDField = "GRID_ID"

// Pipeline runs the stages against one provider and workspace manager.
type Pipeline struct {
	cfg      *config.PipelineConfig
	provider provider.Provider
	ws       *workspace.Manager
	fs       fsutil.FileSystem
	clock    timeutil.Clock
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithFileSystem sets the filesystem the output and previews are written to.
func WithFileSystem(fs fsutil.FileSystem) Option {
	return func(p *Pipeline) { p.fs = fs }
}

// WithClock sets the clock used for elapsed-time logging and the run log.
func WithClock(c timeutil.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// New returns a Pipeline. ws must be the manager the provider writes its
// layers to.
func New(cfg *config.PipelineConfig, p provider.Provider, ws *workspace.Manager, opts ...Option) *Pipeline {
	if cfg == nil {
		cfg = config.EmptyPipelineConfig()
	}
	pl := &Pipeline{
		cfg:      cfg,
		provider: p,
		ws:       ws,
		fs:       fsutil.OSFileSystem{},
		clock:    timeutil.RealClock{},
	}
	for _, o := range opts {
		o(pl)
	}
	return pl
}

// Result summarises a run.
type Result struct {
	RunID      uuid.UUID
	Variables  []catalog.Variable
	Columns    []string
	Rows       int
	OutputPath string
	Elapsed    time.Duration
	Stages     []StageTiming
}

// Layers returns the four artifact paths of a run in creation order.
func (p *Pipeline) Layers() []string {
	return []string{
		p.cfg.GetRegionsLayer(),
		p.cfg.GetDissolvedLayer(),
		p.cfg.GetGridLayer(),
		p.cfg.GetEnrichedLayer(),
	}
}

// Variables returns the catalog entries whose name matches the configured
// pattern, with the data source set for the duration of the call.
func (p *Pipeline) Variables(ctx context.Context) ([]catalog.Variable, error) {
	restore := p.provider.Env().Scope(p.cfg.GetDataSource())
	defer restore()
	return p.variables(ctx)
}

func (p *Pipeline) variables(ctx context.Context) ([]catalog.Variable, error) {
	all, err := p.provider.Variables(ctx, p.cfg.GetCountry())
	if err != nil {
		return nil, err
	}
	return catalog.Filter(all, p.cfg.GetVariablePattern())
}

// Run executes every stage in order. A failing stage stops the run and
// leaves the artifacts of earlier stages in place; the returned Result is
// filled as far as the run got.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := p.checkOutputPaths(); err != nil {
		return nil, err
	}

	restore := p.provider.Env().Scope(p.cfg.GetDataSource())
	defer restore()

	logWS, err := workspace.ParsePath(p.cfg.GetEnrichedLayer())
	if err != nil {
		return nil, err
	}
	runs, err := p.ws.RunLog(logWS.Workspace, p.clock)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	id, err := runs.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	r := &run{
		Pipeline: p,
		runs:     runs,
		res:      &Result{RunID: id, OutputPath: p.cfg.GetOutputPath()},
		start:    p.clock.Now(),
	}
	runErr := r.execute(ctx)
	r.res.Elapsed = p.clock.Now().Sub(r.start)

	// The run log outlives a cancelled context.
	if err := runs.Finish(context.WithoutCancel(ctx), id, runErr); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to finish run: %w", err)
	}
	return r.res, runErr
}

// checkOutputPaths confines the output file and previews to the
// configured output directory.
func (p *Pipeline) checkOutputPaths() error {
	dir := p.cfg.GetOutputDir()
	if dir == "" {
		return nil
	}
	for _, path := range []string{p.cfg.GetOutputPath(), p.cfg.GetPreviewPNG(), p.cfg.GetPreviewHTML()} {
		if path == "" {
			continue
		}
		if err := security.ValidatePathWithinDirectory(path, dir); err != nil {
			return fmt.Errorf("invalid output path: %w", err)
		}
	}
	return nil
}

// run is the state of one execution.
type run struct {
	*Pipeline
	runs  *workspace.RunLog
	res   *Result
	start time.Time
}

func (r *run) execute(ctx context.Context) error {
	cfg := r.cfg
	var vars []catalog.Variable

	err := r.stage(ctx, StageVariables, func() error {
		var err error
		vars, err = r.variables(ctx)
		if err != nil {
			return err
		}
		r.res.Variables = vars
		r.res.Columns = append([]string{GridIDField}, catalog.FieldNames(vars)...)
		return nil
	})
	if err != nil {
		return err
	}
	if err := r.deleteArtifacts(ctx); err != nil {
		return err
	}

	err = r.stage(ctx, StageStandardGeography, func() error {
		return r.provider.StandardGeography(ctx, provider.GeographyOptions{
			Level:               cfg.GetGeographyLevel(),
			IDs:                 cfg.GetGeographyIDs(),
			OutLayer:            cfg.GetRegionsLayer(),
			SummarizeDuplicates: cfg.GetSummarizeDuplicates(),
			Dissolve:            cfg.GetDissolveOutput(),
		})
	})
	if err != nil {
		return err
	}

	err = r.stage(ctx, StageDissolve, func() error {
		return r.provider.Dissolve(ctx, provider.DissolveOptions{
			InLayer:  cfg.GetRegionsLayer(),
			OutLayer: cfg.GetDissolvedLayer(),
			Field:    cfg.GetDissolveField(),
		})
	})
	if err != nil {
		return err
	}

	err = r.stage(ctx, StageGeneralize, func() error {
		return r.provider.Generalize(ctx, cfg.GetDissolvedLayer(), cfg.GetGeneralizeTolerance())
	})
	if err != nil {
		return err
	}

	err = r.stage(ctx, StageGrid, func() error {
		return r.provider.GenerateGrid(ctx, provider.GridOptions{
			AOILayer:     cfg.GetDissolvedLayer(),
			OutLayer:     cfg.GetGridLayer(),
			CellType:     cfg.GetCellType(),
			CellSize:     cfg.GetCellSize(),
			H3Resolution: cfg.GetH3Resolution(),
		})
	})
	if err != nil {
		return err
	}
	r.printMessages()

	err = r.stage(ctx, StageEnrich, func() error {
		return r.provider.Enrich(ctx, provider.EnrichOptions{
			InLayer:   cfg.GetGridLayer(),
			OutLayer:  cfg.GetEnrichedLayer(),
			Variables: catalog.JoinEnrichNames(vars),
		})
	})
	if err != nil {
		return err
	}
	r.printMessages()

	return r.stage(ctx, StageExport, func() error {
		rows, err := r.export(ctx, vars)
		if err != nil {
			return err
		}
		r.res.Rows = rows
		return r.writePreviews(ctx, vars)
	})
}

// stage runs fn as stage s, records its messages in the run log and logs
// the elapsed time since the start of the run.
func (r *run) stage(ctx context.Context, s Stage, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", s, err)
	}
	if err := r.runs.SetStage(ctx, r.res.RunID, s.String()); err != nil {
		return fmt.Errorf("%s: %w", s, err)
	}

	err := fn()
	if msgs := r.provider.Messages(); len(msgs) > 0 && s != StageExport {
		if lerr := r.runs.AddMessages(context.WithoutCancel(ctx), r.res.RunID, s.String(), msgs); lerr != nil && err == nil {
			err = lerr
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", s, err)
	}

	elapsed := r.clock.Now().Sub(r.start)
	r.res.Stages = append(r.res.Stages, StageTiming{Stage: s, Elapsed: elapsed})
	monitoring.Logf("%.3fs Finished %s", elapsed.Seconds(), s)
	return nil
}

func (r *run) printMessages() {
	if msgs := r.provider.Messages(); len(msgs) > 0 {
		monitoring.Logf("%s", strings.Join(msgs, "\n"))
	}
}

// deleteArtifacts removes every layer a previous run left behind.
func (r *run) deleteArtifacts(ctx context.Context) error {
	for _, layer := range r.Layers() {
		exists, err := r.ws.Exists(ctx, layer)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := r.ws.Delete(ctx, layer); err != nil {
			return fmt.Errorf("failed to delete %s: %w", layer, err)
		}
		monitoring.Logf("Deleted existing %s", layer)
	}
	return nil
}
