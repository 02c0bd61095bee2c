package cmd

import (
	"fmt"
	"runtime"

	"github.com/urfave/cli"

	"github.com/tizano/tanstack-wedding-timers-sub000/cmd/common"
)

type BuildArgs struct {
	Version   string
	BuildType string
	Date      string
	Commit    string
}

var currentBuildArgs BuildArgs

func Execute(args []string, bArgs BuildArgs) error {
	currentBuildArgs = bArgs
	app := cli.App{
		Name:                  "timersd",
		HelpName:              "timersd",
		Usage:                 "Run-of-show timers for live events.",
		Version:               fmt.Sprintf("%s-%s", bArgs.Version, bArgs.BuildType),
		UsageText:             "timersd <command> [arguments...]",
		Description:           DESCRIPTION,
		CustomAppHelpTemplate: HELP_TEMPL,
		OnUsageError:          common.UsageErrorCallback,
		Commands: []cli.Command{
			{
				Name:               "serve",
				Aliases:            []string{"daemon"},
				Usage:              "run the timer daemon",
				Description:        ServeDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             serve,
				Flags:              serveFlags,
			},
			{
				Name:               "seed",
				Usage:              "load a run-of-show plan into the store",
				UsageText:          "seed [--db path] <plan.json>",
				Description:        SeedDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             seedCmd,
				Flags:              seedFlags,
			},
			{
				Name:               "watch",
				Aliases:            []string{"w"},
				Usage:              "follow an event live",
				UsageText:          "watch <event id>",
				Description:        WatchDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				OnUsageError:       common.UsageErrorCallback,
				Action:             watch,
				Flags:              watchFlags,
			},
			{
				Name:               "event",
				Usage:              "inspect events",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Subcommands:        eventCommands,
			},
			{
				Name:               "timer",
				Aliases:            []string{"t"},
				Usage:              "drive timers",
				Description:        TimerDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Subcommands:        timerCommands,
			},
			{
				Name:               "action",
				Aliases:            []string{"a"},
				Usage:              "drive media cues",
				Description:        ActionDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Subcommands:        actionCommands,
			},
			{
				Name:               "demo",
				Usage:              "rehearse an event on its demo copy",
				Description:        DemoDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Subcommands:        demoCommands,
			},
			{
				Name:               "secret",
				Usage:              "show or rotate the RPC bearer token",
				Description:        SecretDescription,
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Subcommands:        secretCommands,
			},
			{
				Name:    "help",
				Aliases: []string{"h"},
				Usage:   "prints the help message",
				Action:  common.Help,
			},
			{
				Name:               "version",
				Aliases:            []string{"v"},
				Usage:              "prints the installed version",
				UsageText:          " ",
				CustomHelpTemplate: CMD_HELP_TEMPL,
				Action:             common.GetVersion,
			},
		},
		HideHelp:    true,
		HideVersion: true,
	}
	common.VersionCmdStr = fmt.Sprintf("%s %s (%s_%s)\nBuild: %s=%s\n",
		app.Name,
		app.Version,
		runtime.GOOS,
		runtime.GOARCH,
		bArgs.Date, bArgs.Commit,
	)
	return app.Run(args)
}
