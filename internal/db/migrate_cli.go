package db

import (
	"fmt"
	"io"
	"io/fs"
	"strconv"

	"github.com/banshee-data/hexenrich/internal/monitoring"
)

// RunMigrateCommand dispatches a 'migrate' subcommand against database.
// Supported actions: up, down, status, version <n>, force <n>.
func RunMigrateCommand(args []string, database *DB, migrations fs.FS, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return fmt.Errorf("missing migrate action")
	}

	switch action := args[0]; action {
	case "up":
		monitoring.Logf("Running migrations...")
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
	case "down":
		monitoring.Logf("Rolling back one migration...")
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
	case "status":
		// handled below
	case "version":
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		if err := database.MigrateTo(migrations, uint(v)); err != nil {
			return err
		}
	case "force":
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		if err := database.MigrateForce(migrations, v); err != nil {
			return err
		}
	case "help":
		PrintMigrateHelp(out)
		return nil
	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action: %s", action)
	}

	status, err := database.MigrationStatus(migrations)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	printStatus(out, database.Path(), status)
	return nil
}

func versionArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("usage: migrate %s <version_number>", args[0])
	}
	v, err := strconv.Atoi(args[1])
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version number: %s", args[1])
	}
	return v, nil
}

func printStatus(out io.Writer, path string, s MigrationStatus) {
	fmt.Fprintf(out, "=== Migration Status (%s) ===\n", path)
	fmt.Fprintf(out, "Current version: %d\n", s.CurrentVersion)
	fmt.Fprintf(out, "Latest available: %d\n", s.LatestVersion)
	fmt.Fprintf(out, "Dirty: %v\n", s.Dirty)
	switch {
	case s.Dirty:
		fmt.Fprintln(out, "WARNING: database is in a dirty state; run 'migrate force <version>' after inspecting it.")
	case s.CurrentVersion < s.LatestVersion:
		fmt.Fprintf(out, "Database is %d version(s) behind. Run 'migrate up' to update.\n", s.LatestVersion-s.CurrentVersion)
	default:
		fmt.Fprintln(out, "Database is up to date.")
	}
}

// PrintMigrateHelp writes usage for the migrate subcommand.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: hexenrich migrate <action> [args]

Actions:
  up               Apply all pending migrations
  down             Roll back the most recent migration
  status           Show current and latest migration versions
  version <n>      Migrate up or down to version n
  force <n>        Force the recorded version (dirty state recovery only)
  help             Show this help
`)
}
