package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/prn-tf/pan-storage/internal/app"
	"github.com/prn-tf/pan-storage/internal/pkg/crypto"
	"github.com/prn-tf/pan-storage/internal/pkg/idgen"
)

var idCmd = &cli.Command{
	Name:  "id",
	Usage: "Generate, decode and obfuscate record ids",
	Subcommands: []*cli.Command{
		idGenerateCmd,
		idDecomposeCmd,
		idObfuscateCmd,
		idRevealCmd,
	},
}

var idGenerateCmd = &cli.Command{
	Name:  "generate",
	Usage: "Print new snowflake ids",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "count", Aliases: []string{"n"}, Value: 1, Usage: "Number of ids"},
		&cli.Int64Flag{Name: "worker", Value: -1, Usage: "Worker id override (0-31)"},
		&cli.Int64Flag{Name: "datacenter", Value: -1, Usage: "Datacenter id override (0-31)"},
	},
	Action: func(ctx *cli.Context) error {
		var opts []idgen.Option
		if w := ctx.Int64("worker"); w >= 0 {
			opts = append(opts, idgen.WithWorkerID(w))
		}
		if d := ctx.Int64("datacenter"); d >= 0 {
			opts = append(opts, idgen.WithDatacenterID(d))
		}

		g := idgen.New(opts...)
		for i := 0; i < ctx.Int("count"); i++ {
			id, err := g.Generate()
			if err != nil {
				return err
			}
			fmt.Println(id)
		}
		return nil
	},
}

var idDecomposeCmd = &cli.Command{
	Name:      "decompose",
	Usage:     "Split an id into time, datacenter, worker and sequence",
	ArgsUsage: "<id>",
	Action: func(ctx *cli.Context) error {
		id, err := parseID(ctx.Args().First())
		if err != nil {
			return err
		}

		p := idgen.Decompose(id)
		fmt.Printf("time:        %s\n", p.Time.Format(time.RFC3339Nano))
		fmt.Printf("datacenter:  %d\n", p.DatacenterID)
		fmt.Printf("worker:      %d\n", p.WorkerID)
		fmt.Printf("sequence:    %d\n", p.Sequence)
		return nil
	},
}

var idObfuscateCmd = &cli.Command{
	Name:      "obfuscate",
	Usage:     "Print the external token of an id",
	ArgsUsage: "<id>",
	Action: func(ctx *cli.Context) error {
		id, err := parseID(ctx.Args().First())
		if err != nil {
			return err
		}
		cipher, err := cipherFromConfig(ctx)
		if err != nil {
			return err
		}
		fmt.Println(cipher.Obfuscate(id))
		return nil
	},
}

var idRevealCmd = &cli.Command{
	Name:      "reveal",
	Usage:     "Print the id behind an external token",
	ArgsUsage: "<token>",
	Action: func(ctx *cli.Context) error {
		cipher, err := cipherFromConfig(ctx)
		if err != nil {
			return err
		}
		id, err := cipher.Reveal(ctx.Args().First())
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var keygenCmd = &cli.Command{
	Name:  "keygen",
	Usage: "Print a random hex key usable as ids.secret",
	Action: func(ctx *cli.Context) error {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	},
}

func cipherFromConfig(ctx *cli.Context) (*crypto.IDCipher, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return app.NewCipher(cfg.IDs)
}

func parseID(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("id argument is required")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return id, nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := parseID(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
