package cmd

import (
	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/tizano/tanstack-wedding-timers-sub000/cmd/common"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/seed"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/server"
)

var demoFs = afero.NewOsFs()

var demoMappingFlags = []cli.Flag{
	cli.StringFlag{Name: "mapping, m", Usage: "demo mapping JSON (default: the daemon's mapping)"},
	cli.StringFlag{Name: "event", Usage: "demo event id"},
	cli.StringFlag{Name: "template", Usage: "template event id"},
}

// demoParams reads the mapping file and flag overrides. Empty fields fall
// back to the daemon's configured mapping.
func demoParams(ctx *cli.Context) (*server.DemoParams, error) {
	p := &server.DemoParams{}
	if path := ctx.String("mapping"); path != "" {
		m, err := seed.LoadMapping(demoFs, path)
		if err != nil {
			return nil, err
		}
		p.EventID, p.TemplateEventID, p.Timers = m.EventID, m.TemplateEventID, m.Timers
	}
	if v := ctx.String("event"); v != "" {
		p.EventID = v
	}
	if v := ctx.String("template"); v != "" {
		p.TemplateEventID = v
	}
	return p, nil
}

func demoWithMapping(name, usage, method string) cli.Command {
	return cli.Command{
		Name:  name,
		Usage: usage,
		Flags: withClientFlags(demoMappingFlags...),
		Action: func(ctx *cli.Context) error {
			p, err := demoParams(ctx)
			if err != nil {
				return common.RuntimeErr("demo", name, err)
			}
			return callAndPrint(ctx, "demo", method, p)
		},
	}
}

var demoCommands = []cli.Command{
	demoWithMapping("reset", "copy the template event back onto the demo event", "demo.reset"),
	demoWithMapping("start", "reset and start the demo with compressed timing", "demo.start"),
	{
		Name:      "jump",
		Usage:     "jump the demo to a timer",
		ArgsUsage: "<timer id>",
		Flags:     withClientFlags(secondsBeforeFlag),
		Action: func(ctx *cli.Context) error {
			if err := requireArgs(ctx, "timer id"); err != nil {
				return err
			}
			return callAndPrint(ctx, "demo", "demo.jumpToTimer", jumpParams(ctx))
		},
	},
}
