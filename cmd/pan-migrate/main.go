// Package main is the entry point for the pan storage database migration tool.
// It applies the embedded schema migrations of the configured metadata store.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/pan-storage/internal/app"
	"github.com/prn-tf/pan-storage/internal/config"
	"github.com/prn-tf/pan-storage/internal/repository"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "version":
		fmt.Printf("pan storage migration tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "up":
		if err := withDatabase(func(ctx context.Context, db repository.Database) error {
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			return printStatus(ctx, db)
		}); err != nil {
			fail(err)
		}

	case "status":
		if err := withDatabase(printStatus); err != nil {
			fail(err)
		}

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func withDatabase(fn func(ctx context.Context, db repository.Database) error) error {
	cfg, err := config.Load(os.Getenv("PAN_CONFIG_FILE"))
	if err != nil {
		return err
	}

	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	logger = logger.Level(zerolog.WarnLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, _, err := app.OpenDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, db)
}

func printStatus(ctx context.Context, db repository.Database) error {
	states, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
	for _, s := range states {
		fmt.Fprintf(w, "%06d\t%s\t%t\n", s.Version, s.Name, s.Applied)
	}
	return w.Flush()
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printUsage() {
	fmt.Println(`pan storage migration tool

Usage:
  pan-migrate <command>

Commands:
  up          Apply all pending migrations
  status      Show current migration status
  version     Print version information
  help        Show this help message

Environment Variables:
  PAN_CONFIG_FILE       Path to the YAML configuration file
  PAN_DATABASE_DRIVER   sqlite or postgres (any config key can be set as PAN_<SECTION>_<KEY>)

Examples:
  pan-migrate up
  PAN_DATABASE_DRIVER=postgres PAN_DATABASE_HOST=db pan-migrate status`)
}
