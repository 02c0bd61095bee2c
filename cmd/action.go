package cmd

import (
	"github.com/urfave/cli"

	"github.com/tizano/tanstack-wedding-timers-sub000/internal/server"
)

func actionByID(name, usage, method string) cli.Command {
	return cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<action id>",
		Flags:     withClientFlags(),
		Action: func(ctx *cli.Context) error {
			if err := requireArgs(ctx, "action id"); err != nil {
				return err
			}
			return callAndPrint(ctx, "action", method, server.ActionParam{ActionID: ctx.Args().Get(0)})
		},
	}
}

func actionsOfTimer(name, usage, method string) cli.Command {
	return cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<timer id>",
		Flags:     withClientFlags(),
		Action: func(ctx *cli.Context) error {
			if err := requireArgs(ctx, "timer id"); err != nil {
				return err
			}
			return callAndPrint(ctx, "action", method, server.TimerParam{TimerID: ctx.Args().Get(0)})
		},
	}
}

var secondsBeforeFlag = cli.IntFlag{
	Name:  "seconds-before, s",
	Usage: "land this many seconds before the trigger (default: the daemon's jump lead)",
}

// jumpParams reads the timer id and the optional lead.
func jumpParams(ctx *cli.Context) server.JumpParams {
	p := server.JumpParams{TimerID: ctx.Args().Get(0)}
	if ctx.IsSet("seconds-before") {
		v := ctx.Int("seconds-before")
		p.SecondsBefore = &v
	}
	return p
}

var actionCommands = []cli.Command{
	actionsOfTimer("next", "print the next action to fire", "action.next"),
	actionsOfTimer("current", "print the action firing now", "action.current"),
	actionByID("start", "mark an action as playing", "action.start"),
	actionByID("complete", "acknowledge an action", "action.complete"),
	actionsOfTimer("reset-all", "reset every action of a timer", "action.resetAll"),
	{
		Name:      "jump",
		Usage:     "move the timer so its next action fires shortly",
		ArgsUsage: "<timer id>",
		Flags:     withClientFlags(secondsBeforeFlag),
		Action: func(ctx *cli.Context) error {
			if err := requireArgs(ctx, "timer id"); err != nil {
				return err
			}
			return callAndPrint(ctx, "action", "action.jumpBeforeNext", jumpParams(ctx))
		},
	},
}
