package cmd

import (
	"fmt"

	"github.com/urfave/cli"

	"github.com/tizano/tanstack-wedding-timers-sub000/cmd/common"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/server"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/naive"
)

var eventCommands = []cli.Command{
	{
		Name:      "get",
		Usage:     "print an event with all timers and actions",
		ArgsUsage: "<event id>",
		Flags:     withClientFlags(),
		Action: func(ctx *cli.Context) error {
			if err := requireArgs(ctx, "event id"); err != nil {
				return err
			}
			return callAndPrint(ctx, "event", "event.get", server.EventParam{EventID: ctx.Args().Get(0)})
		},
	},
	{
		Name:  "list",
		Usage: "list stored events",
		Flags: withClientFlags(),
		Action: func(ctx *cli.Context) error {
			return callAndPrint(ctx, "event", "event.list", nil)
		},
	},
}

// timerByID builds a command taking one timer id.
func timerByID(name, usage, method string) cli.Command {
	return cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<timer id>",
		Flags:     withClientFlags(),
		Action: func(ctx *cli.Context) error {
			if err := requireArgs(ctx, "timer id"); err != nil {
				return err
			}
			return callAndPrint(ctx, "timer", method, server.TimerParam{TimerID: ctx.Args().Get(0)})
		},
	}
}

// timerInEvent builds a command taking an event id and a timer id.
func timerInEvent(name, usage, method string) cli.Command {
	return cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<event id> <timer id>",
		Flags:     withClientFlags(),
		Action: func(ctx *cli.Context) error {
			if err := requireArgs(ctx, "event id", "timer id"); err != nil {
				return err
			}
			return callAndPrint(ctx, "timer", method, server.TimerParam{
				EventID: ctx.Args().Get(0),
				TimerID: ctx.Args().Get(1),
			})
		},
	}
}

// eventCheck builds a command taking one event id.
func eventCheck(name, usage, method string) cli.Command {
	return cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<event id>",
		Flags:     withClientFlags(),
		Action: func(ctx *cli.Context) error {
			if err := requireArgs(ctx, "event id"); err != nil {
				return err
			}
			return callAndPrint(ctx, "timer", method, server.EventParam{EventID: ctx.Args().Get(0)})
		},
	}
}

var timerCommands = []cli.Command{
	timerByID("get", "print a timer with its actions", "timer.get"),
	timerInEvent("start", "start a durational timer", "timer.start"),
	timerInEvent("start-manual", "start a manual or punctual timer", "timer.startManual"),
	timerByID("complete", "complete a timer and advance the event", "timer.complete"),
	timerByID("actions", "print the trigger times of pending actions", "timer.actions"),
	eventCheck("check-due", "start the first overdue durational timer", "timer.checkDue"),
	eventCheck("check-punctual", "start one overdue punctual timer", "timer.checkPunctual"),
	{
		Name:      "update",
		Usage:     "edit a timer",
		ArgsUsage: "<timer id>",
		Flags: withClientFlags(
			cli.StringFlag{Name: "name", Usage: "new name"},
			cli.IntFlag{Name: "duration", Usage: "new duration in minutes"},
			cli.StringFlag{Name: "scheduled-start", Usage: "new scheduled start (YYYY-MM-DDTHH:MM[:SS])"},
			cli.BoolFlag{Name: "manual", Usage: "mark the timer manual"},
			cli.BoolFlag{Name: "not-manual", Usage: "clear the manual flag"},
			cli.BoolFlag{Name: "cascade", Usage: "shift later timers by the duration change"},
			cli.IntFlag{Name: "original-duration", Usage: "reference duration for the cascade"},
		),
		Action: timerUpdate,
	},
}

// buildUpdateParams turns the update flags into timer.update params. Only
// flags that were set end up in the patch.
func buildUpdateParams(ctx *cli.Context) (*server.UpdateTimerParams, error) {
	p := &server.UpdateTimerParams{TimerID: ctx.Args().Get(0), Cascade: ctx.Bool("cascade")}
	if ctx.IsSet("name") {
		v := ctx.String("name")
		p.Name = &v
	}
	if ctx.IsSet("duration") {
		v := ctx.Int("duration")
		if v < 0 {
			return nil, fmt.Errorf("duration must not be negative")
		}
		p.DurationMinutes = &v
	}
	if ctx.IsSet("scheduled-start") {
		v, err := naive.Parse(ctx.String("scheduled-start"))
		if err != nil {
			return nil, err
		}
		p.ScheduledStartAt = &v
	}
	switch {
	case ctx.Bool("manual") && ctx.Bool("not-manual"):
		return nil, fmt.Errorf("--manual and --not-manual are mutually exclusive")
	case ctx.Bool("manual"):
		v := true
		p.IsManual = &v
	case ctx.Bool("not-manual"):
		v := false
		p.IsManual = &v
	}
	if ctx.IsSet("original-duration") {
		v := ctx.Int("original-duration")
		p.OriginalDuration = &v
	}
	return p, nil
}

func timerUpdate(ctx *cli.Context) error {
	if err := requireArgs(ctx, "timer id"); err != nil {
		return err
	}
	p, err := buildUpdateParams(ctx)
	if err != nil {
		return common.RuntimeErr("timer", "update", err)
	}
	return callAndPrint(ctx, "timer", "timer.update", p)
}
