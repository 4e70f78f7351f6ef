// Command hexenrich covers a set of regions with grid cells, enriches every
// cell with demographic variables and exports the result as a table.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/hexenrich/internal/config"
	"github.com/banshee-data/hexenrich/internal/version"
)

var (
	configPath  = flag.String("config", "", "Pipeline config file (default: "+config.DefaultConfigPath+" when present)")
	dataRoot    = flag.String("data-root", "", "Directory holding <dataset>.sqlite data sources (overrides config)")
	outputPath  = flag.String("output", "", "Output table path (overrides config)")
	format      = flag.String("format", "", "Output format: parquet, csv or xlsx (overrides config)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// globalOptions are the flags shared by every command.
type globalOptions struct {
	ConfigPath string
	DataRoot   string
	OutputPath string
	Format     string
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("hexenrich %s (git %s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	command := "run"
	var args []string
	if flag.NArg() > 0 {
		command = flag.Arg(0)
		args = flag.Args()[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	opts := globalOptions{ConfigPath: *configPath, DataRoot: *dataRoot, OutputPath: *outputPath, Format: *format}
	err := execute(ctx, opts, command, args, os.Stdout)
	stop()
	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}
}

func execute(ctx context.Context, opts globalOptions, command string, args []string, out io.Writer) error {
	switch command {
	case "run":
		cfg, err := loadConfig(opts)
		if err != nil {
			return err
		}
		return runPipeline(ctx, cfg, out)
	case "variables":
		cfg, err := loadConfig(opts)
		if err != nil {
			return err
		}
		return listVariables(ctx, cfg, out)
	case "import":
		cfg, err := loadConfig(opts)
		if err != nil {
			return err
		}
		return importShapefile(ctx, cfg, args, out)
	case "migrate":
		return migrate(args, out)
	case "help":
		printUsageTo(out)
		return nil
	}
	printUsageTo(out)
	return fmt.Errorf("unknown command %q", command)
}

// loadConfig reads the config file, falling back to the defaults file when
// it exists and to built-in defaults otherwise, then applies flag overrides.
func loadConfig(opts globalOptions) (*config.PipelineConfig, error) {
	var cfg *config.PipelineConfig
	switch {
	case opts.ConfigPath != "":
		c, err := config.LoadPipelineConfig(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	default:
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			c, err := config.LoadPipelineConfig(config.DefaultConfigPath)
			if err != nil {
				return nil, err
			}
			cfg = c
		} else {
			cfg = config.EmptyPipelineConfig()
		}
	}

	if opts.DataRoot != "" {
		cfg.DataRoot = &opts.DataRoot
	}
	if opts.OutputPath != "" {
		cfg.OutputPath = &opts.OutputPath
	}
	if opts.Format != "" {
		cfg.OutputFormat = &opts.Format
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func printUsage() {
	printUsageTo(os.Stderr)
}

func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `hexenrich - tessellate regions into grid cells and enrich them

Usage: hexenrich [flags] <command> [options]

Commands:
  run          Run the pipeline (default)
  variables    List the variables selected by the configured pattern
  import       Load a shapefile into a data source
               -kind geography|blocks -id-field F [-level L] [-name-field F]
               [-fields COL=enrich.name,...] [-srs proj4] <file.shp>
  migrate      Manage workspace or data source schemas
               <file.gdb|file.sqlite> up|down|status|version N|force N
  help         Show this help message

Flags:`)
	flag.CommandLine.SetOutput(w)
	flag.PrintDefaults()
}
