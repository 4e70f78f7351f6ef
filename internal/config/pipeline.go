package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/banshee-data/hexenrich/internal/units"
	"github.com/banshee-data/hexenrich/internal/workspace"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
const DefaultConfigPath = "config/pipeline.defaults.json"

// Default values, matching config/pipeline.defaults.json.
const (
	DefaultCountry             = "USA"
	DefaultVariablePattern     = "THH[0-9][0-9]"
	DefaultDataSource          = "LOCAL;;USA_ESRI_2022"
	DefaultDataRoot            = "data"
	DefaultGeographyLevel      = "US.States"
	DefaultSummarizeDuplicates = "USE_FIRST"
	DefaultDissolveOutput      = "DONT_DISSOLVE"
	DefaultGeneralizeTolerance = "2 Kilometers"
	DefaultCellType            = "H3_HEXAGON"
	DefaultCellSize            = "1 SquareMiles"
	DefaultH3Resolution        = 7
	DefaultRegionsLayer        = "memory/States"
	DefaultDissolvedLayer      = "memory/DissolvedStates"
	DefaultGridLayer           = "output/hexenrich.gdb/script_result_hexbins"
	DefaultEnrichedLayer       = "output/hexenrich.gdb/script_result_hexbins_enriched"
	DefaultOutputPath          = "output/result.parquet"
	DefaultOutputFormat        = "parquet"

	// DefaultProcessingProjection is a Lambert conformal conic projection
	// over the conterminous United States, in meters.
	DefaultProcessingProjection = "+proj=lcc +lat_1=33.000000 +lat_2=45.000000 +lat_0=40.000000 +lon_0=-97.000000 +x_0=0 +y_0=0 +a=6370997.000000 +b=6370997.000000 +to_meter=1"
)

// DefaultGeographyIDs are the state FIPS codes of the 48 conterminous
// states plus the District of Columbia.
var DefaultGeographyIDs = []string{
	"01", "04", "05", "06", "08", "09", "10", "11", "12", "13", "16", "17",
	"18", "19", "20", "21", "22", "23", "24", "25", "26", "27", "28", "29",
	"30", "31", "32", "33", "34", "35", "36", "37", "38", "39", "40", "41",
	"42", "44", "45", "46", "47", "48", "49", "50", "51", "53", "54", "55",
	"56",
}

var (
	validCellTypes           = []string{"H3_HEXAGON", "HEXAGON", "SQUARE"}
	validSummarizeDuplicates = []string{"USE_FIRST", "USE_ALL"}
	validDissolveOutput      = []string{"DONT_DISSOLVE", "DISSOLVE"}
	validOutputFormats       = []string{"parquet", "csv", "xlsx"}
)

// PipelineConfig is the root configuration of a tessellate-and-enrich run.
// Fields omitted from the JSON file fall back to the Default* constants via
// the Get* accessors, so partial configs are safe.
type PipelineConfig struct {
	// Variable selection
	Country         *string `json:"country,omitempty"`
	VariablePattern *string `json:"variable_pattern,omitempty"`

	// Provider environment
	DataSource           *string `json:"data_source,omitempty"` // e.g. "LOCAL;;USA_ESRI_2022"
	DataRoot             *string `json:"data_root,omitempty"`
	ProcessingProjection *string `json:"processing_projection,omitempty"`

	// Boundary resolution
	GeographyLevel      *string  `json:"geography_level,omitempty"`
	GeographyIDs        []string `json:"geography_ids,omitempty"`
	SummarizeDuplicates *string  `json:"summarize_duplicates,omitempty"`
	DissolveOutput      *string  `json:"dissolve_output,omitempty"`

	// Dissolve and generalize
	DissolveField       *string `json:"dissolve_field,omitempty"`
	GeneralizeTolerance *string `json:"generalize_tolerance,omitempty"` // "2 Kilometers"

	// Grid generation
	CellType     *string `json:"cell_type,omitempty"`
	CellSize     *string `json:"cell_size,omitempty"` // "1 SquareMiles"
	H3Resolution *int    `json:"h3_resolution,omitempty"`

	// Artifacts
	RegionsLayer   *string `json:"regions_layer,omitempty"`
	DissolvedLayer *string `json:"dissolved_layer,omitempty"`
	GridLayer      *string `json:"grid_layer,omitempty"`
	EnrichedLayer  *string `json:"enriched_layer,omitempty"`

	// Export
	OutputPath   *string `json:"output_path,omitempty"`
	OutputFormat *string `json:"output_format,omitempty"`
	OutputDir    *string `json:"output_dir,omitempty"` // when set, output paths must stay inside it
	PreviewPNG   *string `json:"preview_png,omitempty"`
	PreviewHTML  *string `json:"preview_html,omitempty"`
}

// EmptyPipelineConfig returns a PipelineConfig with all fields unset.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *PipelineConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadPipelineConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are well formed.
func (c *PipelineConfig) Validate() error {
	if _, err := regexp.Compile(c.GetVariablePattern()); err != nil {
		return fmt.Errorf("invalid variable_pattern %q: %w", c.GetVariablePattern(), err)
	}
	if ids := c.GetGeographyIDs(); len(ids) == 0 {
		return fmt.Errorf("geography_ids must not be empty")
	}
	if err := oneOf("summarize_duplicates", c.GetSummarizeDuplicates(), validSummarizeDuplicates); err != nil {
		return err
	}
	if err := oneOf("dissolve_output", c.GetDissolveOutput(), validDissolveOutput); err != nil {
		return err
	}
	if _, err := units.ParseDistance(c.GetGeneralizeTolerance()); err != nil {
		return fmt.Errorf("invalid generalize_tolerance: %w", err)
	}
	if err := oneOf("cell_type", c.GetCellType(), validCellTypes); err != nil {
		return err
	}
	if _, err := units.ParseArea(c.GetCellSize()); err != nil {
		return fmt.Errorf("invalid cell_size: %w", err)
	}
	if r := c.GetH3Resolution(); r < 0 || r > 15 {
		return fmt.Errorf("h3_resolution must be between 0 and 15, got %d", r)
	}
	if err := oneOf("output_format", c.GetOutputFormat(), validOutputFormats); err != nil {
		return err
	}

	layers := []struct{ field, path string }{
		{"regions_layer", c.GetRegionsLayer()},
		{"dissolved_layer", c.GetDissolvedLayer()},
		{"grid_layer", c.GetGridLayer()},
		{"enriched_layer", c.GetEnrichedLayer()},
	}
	seen := make(map[string]string, len(layers))
	for _, l := range layers {
		if strings.TrimSpace(l.path) == "" {
			return fmt.Errorf("%s must not be empty", l.field)
		}
		p, err := workspace.ParsePath(l.path)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", l.field, err)
		}
		if other, dup := seen[p.String()]; dup {
			return fmt.Errorf("%s and %s both point at %q", other, l.field, p.String())
		}
		seen[p.String()] = l.field
	}
	if c.GetOutputPath() == "" {
		return fmt.Errorf("output_path must not be empty")
	}
	return nil
}

func oneOf(field, value string, valid []string) error {
	for _, v := range valid {
		if value == v {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(valid, ", "), value)
}

func stringOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

// GetCountry returns the country code or the default.
func (c *PipelineConfig) GetCountry() string { return stringOr(c.Country, DefaultCountry) }

// GetVariablePattern returns the variable name pattern or the default.
func (c *PipelineConfig) GetVariablePattern() string {
	if c.VariablePattern == nil {
		return DefaultVariablePattern
	}
	// An explicit empty pattern is allowed; it matches every variable.
	return *c.VariablePattern
}

// GetDataSource returns the provider data source setting or the default.
func (c *PipelineConfig) GetDataSource() string { return stringOr(c.DataSource, DefaultDataSource) }

// GetDataRoot returns the directory holding local data sources.
func (c *PipelineConfig) GetDataRoot() string { return stringOr(c.DataRoot, DefaultDataRoot) }

// GetProcessingProjection returns the proj4 definition geometries are
// projected into before processing. An explicit empty string disables
// reprojection.
func (c *PipelineConfig) GetProcessingProjection() string {
	if c.ProcessingProjection == nil {
		return DefaultProcessingProjection
	}
	return *c.ProcessingProjection
}

// GetGeographyLevel returns the standard geography level or the default.
func (c *PipelineConfig) GetGeographyLevel() string {
	return stringOr(c.GeographyLevel, DefaultGeographyLevel)
}

// GetGeographyIDs returns the region identifiers or the default list.
func (c *PipelineConfig) GetGeographyIDs() []string {
	if len(c.GeographyIDs) == 0 {
		out := make([]string, len(DefaultGeographyIDs))
		copy(out, DefaultGeographyIDs)
		return out
	}
	return c.GeographyIDs
}

// GetSummarizeDuplicates returns the duplicate handling mode or the default.
func (c *PipelineConfig) GetSummarizeDuplicates() string {
	return stringOr(c.SummarizeDuplicates, DefaultSummarizeDuplicates)
}

// GetDissolveOutput returns the boundary dissolve mode or the default.
func (c *PipelineConfig) GetDissolveOutput() string {
	return stringOr(c.DissolveOutput, DefaultDissolveOutput)
}

// GetDissolveField returns the dissolve grouping field; empty merges everything.
func (c *PipelineConfig) GetDissolveField() string { return stringOr(c.DissolveField, "") }

// GetGeneralizeTolerance returns the generalize tolerance or the default.
func (c *PipelineConfig) GetGeneralizeTolerance() string {
	return stringOr(c.GeneralizeTolerance, DefaultGeneralizeTolerance)
}

// GetCellType returns the grid cell type or the default.
func (c *PipelineConfig) GetCellType() string { return stringOr(c.CellType, DefaultCellType) }

// GetCellSize returns the grid cell area or the default.
func (c *PipelineConfig) GetCellSize() string { return stringOr(c.CellSize, DefaultCellSize) }

// GetH3Resolution returns the H3 resolution level or the default.
func (c *PipelineConfig) GetH3Resolution() int {
	if c.H3Resolution == nil {
		return DefaultH3Resolution
	}
	return *c.H3Resolution
}

// GetRegionsLayer returns the resolved-regions artifact path.
func (c *PipelineConfig) GetRegionsLayer() string { return stringOr(c.RegionsLayer, DefaultRegionsLayer) }

// GetDissolvedLayer returns the dissolved-regions artifact path.
func (c *PipelineConfig) GetDissolvedLayer() string {
	return stringOr(c.DissolvedLayer, DefaultDissolvedLayer)
}

// GetGridLayer returns the hex grid artifact path.
func (c *PipelineConfig) GetGridLayer() string { return stringOr(c.GridLayer, DefaultGridLayer) }

// GetEnrichedLayer returns the enriched hex grid artifact path.
func (c *PipelineConfig) GetEnrichedLayer() string {
	return stringOr(c.EnrichedLayer, DefaultEnrichedLayer)
}

// GetOutputPath returns the exported table path or the default.
func (c *PipelineConfig) GetOutputPath() string { return stringOr(c.OutputPath, DefaultOutputPath) }

// GetOutputFormat returns the export format or the default.
func (c *PipelineConfig) GetOutputFormat() string {
	return strings.ToLower(stringOr(c.OutputFormat, DefaultOutputFormat))
}

// GetOutputDir returns the directory exports are confined to, or "" for none.
func (c *PipelineConfig) GetOutputDir() string { return stringOr(c.OutputDir, "") }

// GetPreviewPNG returns the PNG preview path, or "" when disabled.
func (c *PipelineConfig) GetPreviewPNG() string { return stringOr(c.PreviewPNG, "") }

// GetPreviewHTML returns the HTML preview path, or "" when disabled.
func (c *PipelineConfig) GetPreviewHTML() string { return stringOr(c.PreviewHTML, "") }
