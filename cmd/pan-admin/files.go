package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/prn-tf/pan-storage/internal/app"
	"github.com/prn-tf/pan-storage/internal/pkg/crypto"
	"github.com/prn-tf/pan-storage/internal/service"
)

var uploadCmd = &cli.Command{
	Name:  "upload",
	Usage: "Store a local file, reusing existing content when possible",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "file-path",
			Required: true,
			Usage:    "Path to the file you want to store",
		},
		&cli.Int64Flag{
			Name:     "user",
			Required: true,
			Usage:    "Id of the owning user",
		},
	},
	Action: func(ctx *cli.Context) error {
		filePath := ctx.String("file-path")
		userID := ctx.Int64("user")

		identifier, size, err := crypto.FingerprintFile(filePath)
		if err != nil {
			return err
		}

		return withApp(ctx, func(cctx context.Context, a *app.App) error {
			f, err := os.Open(filePath)
			if err != nil {
				return err
			}
			defer f.Close()

			out, err := a.Files.Upload(cctx, service.UploadInput{
				UserID:     userID,
				Filename:   filepath.Base(filePath),
				Identifier: identifier,
				Size:       size,
				Body:       f,
			})
			if err != nil {
				return err
			}

			fmt.Printf("id:         %d\n", out.File.ID)
			fmt.Printf("token:      %s\n", a.Files.Token(out.File.ID))
			fmt.Printf("identifier: %s\n", out.File.Identifier)
			fmt.Printf("size:       %s\n", out.File.SizeDesc)
			fmt.Printf("instant:    %t\n", out.Instant)
			return nil
		})
	},
}

var filesCmd = &cli.Command{
	Name:  "files",
	Usage: "Inspect and delete physical files",
	Subcommands: []*cli.Command{
		{
			Name:      "show",
			Usage:     "Print a physical file by id or token",
			ArgsUsage: "<id|token>",
			Action: func(ctx *cli.Context) error {
				arg := ctx.Args().First()
				return withApp(ctx, func(cctx context.Context, a *app.App) error {
					id, err := parseID(arg)
					if err != nil {
						if id, err = a.Cipher.Reveal(arg); err != nil {
							return err
						}
					}
					file, err := a.Files.Get(cctx, id)
					if err != nil {
						return err
					}
					fmt.Printf("%d\t%s\t%s\t%s\t%s\n",
						file.ID, file.Filename, humanize.Bytes(uint64(file.Size)), file.RealPath, humanize.Time(file.CreatedAt))
					return nil
				})
			},
		},
		{
			Name:      "delete",
			Usage:     "Delete physical files and their bytes",
			ArgsUsage: "<id>...",
			Action: func(ctx *cli.Context) error {
				ids, err := parseIDs(ctx.Args().Slice())
				if err != nil {
					return err
				}
				return withApp(ctx, func(cctx context.Context, a *app.App) error {
					n, err := a.Files.DeletePhysical(cctx, ids)
					if err != nil {
						return err
					}
					fmt.Printf("deleted %d physical files\n", n)
					return nil
				})
			},
		},
	},
}
