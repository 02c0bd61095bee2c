package main

import (
	"fmt"
	"os"

	"github.com/tizano/tanstack-wedding-timers-sub000/cmd"
)

var (
	version   string
	commit    string
	date      string
	buildType string = "unclassified"
)

var osExit = os.Exit

// runMain runs exec and maps its error to an exit code.
func runMain(args []string, exec func([]string) error) int {
	if err := exec(args); err != nil {
		fmt.Fprintf(os.Stderr, "timersd: %s\n", err.Error())
		return 1
	}
	return 0
}

func main() {
	osExit(runMain(os.Args, func(args []string) error {
		return cmd.Execute(args, cmd.BuildArgs{
			Version:   version,
			Commit:    commit,
			Date:      date,
			BuildType: buildType,
		})
	}))
}
