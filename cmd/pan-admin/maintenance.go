package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/prn-tf/pan-storage/internal/app"
	"github.com/prn-tf/pan-storage/internal/service"
)

var chunksCmd = &cli.Command{
	Name:  "chunks",
	Usage: "Maintain chunk records of unfinished uploads",
	Subcommands: []*cli.Command{
		{
			Name:  "purge",
			Usage: "Remove expired chunks now",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "dry-run", Usage: "Only report what would be removed"},
				&cli.IntFlag{Name: "batch-size", Value: 500, Usage: "Chunks per batch"},
			},
			Action: func(ctx *cli.Context) error {
				return withApp(ctx, func(cctx context.Context, a *app.App) error {
					j := service.NewChunkJanitor(a.Repos.FileChunk, a.Engine, a.Locker, a.Metrics, newLogger(ctx), service.JanitorConfig{
						BatchSize: ctx.Int("batch-size"),
						DryRun:    ctx.Bool("dry-run"),
					})
					result := j.RunOnce(cctx)
					if result.Skipped {
						fmt.Println("skipped: another collection is running")
						return nil
					}
					fmt.Printf("chunks removed: %d, errors: %d, took %s\n",
						result.ChunksDeleted, result.Errors, result.Duration)
					return nil
				})
			},
		},
	},
}

var errorsCmd = &cli.Command{
	Name:  "errors",
	Usage: "Review error events that need manual follow-up",
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "List unresolved error events",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "limit", Value: 50, Usage: "Maximum entries"},
			},
			Action: func(ctx *cli.Context) error {
				return withApp(ctx, func(cctx context.Context, a *app.App) error {
					entries, err := a.Reporter.ListUnresolved(cctx, ctx.Int("limit"))
					if err != nil {
						return err
					}

					w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "ID\tUSER\tCREATED\tCONTENT")
					for _, e := range entries {
						fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", e.ID, e.CreatorID, humanize.Time(e.CreatedAt), e.Content)
					}
					return w.Flush()
				})
			},
		},
		{
			Name:      "resolve",
			Usage:     "Mark error events as resolved",
			ArgsUsage: "<id>...",
			Action: func(ctx *cli.Context) error {
				ids, err := parseIDs(ctx.Args().Slice())
				if err != nil {
					return err
				}
				return withApp(ctx, func(cctx context.Context, a *app.App) error {
					n, err := a.Reporter.Resolve(cctx, ids)
					if err != nil {
						return err
					}
					fmt.Printf("resolved %d entries\n", n)
					return nil
				})
			},
		},
	},
}
