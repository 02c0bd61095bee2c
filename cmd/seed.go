package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/tizano/tanstack-wedding-timers-sub000/cmd/common"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/config"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/seed"
)

var seedFs = afero.NewOsFs()

var seedFlags = []cli.Flag{
	cli.StringFlag{Name: "db", Usage: "sqlite database path", EnvVar: config.DBEnv},
	cli.BoolFlag{Name: "dry-run", Usage: "validate the plan without writing"},
}

func seedCmd(ctx *cli.Context) error {
	if err := requireArgs(ctx, "plan file"); err != nil {
		return err
	}
	p, err := seed.LoadPlan(seedFs, ctx.Args().First())
	if err != nil {
		return common.RuntimeErr("seed", "load", err)
	}
	if ctx.Bool("dry-run") {
		timers := 0
		for _, ev := range p.Events {
			timers += len(ev.Timers)
		}
		fmt.Fprintf(common.Out, "plan ok: %d event(s), %d timer(s)\n", len(p.Events), timers)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return common.RuntimeErr("seed", "config", err)
	}
	if ctx.IsSet("db") {
		cfg.DBPath = ctx.String("db")
	}
	cfg.Store = config.StoreSQLite
	st, err := openStore(cfg)
	if err != nil {
		return common.RuntimeErr("seed", "open_store", err)
	}
	if cl, ok := st.(io.Closer); ok {
		defer cl.Close()
	}

	res, err := seed.Apply(context.Background(), st, p)
	if err != nil {
		return common.RuntimeErr("seed", "apply", err)
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(common.Out, string(b))
	return nil
}
