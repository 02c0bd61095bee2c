package cmd

const HELP_TEMPL = `Usage: {{if .UsageText}}{{.UsageText}}{{else}}{{.HelpName}} {{if .VisibleFlags}}[global options]{{end}}{{if .Commands}} command [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}{{end}}
{{.Description}}{{if .VisibleCommands}}
Commands:{{range .VisibleCategories}}{{if .Name}}

{{.Name}}:{{range .VisibleCommands}}
  {{join .Names ", "}}{{"\t"}}{{.Usage}}{{end}}{{else}}{{range .VisibleCommands}}
{{"\t"}}{{index .Names 0}}{{"\t:\t"}}{{.Usage}}{{end}}{{end}}{{end}}{{end}}

Use "{{.HelpName}} help <command>" for more information about any command.

`

const CMD_HELP_TEMPL = `{{if .Description}}{{.Description}}{{else}}{{.HelpName}} - {{.Usage}}

{{end}}Usage:
        {{.HelpName}} {{if .UsageText}}{{.UsageText}}{{else}}[arguments...]{{end}}{{if .VisibleFlags}}

Supported Flags:{{range .VisibleFlags}}
  {{.}}{{end}}{{end}}{{if .Subcommands}}

Subcommands:{{range .Subcommands}}
  {{join .Names ", "}}{{"\t"}}{{.Usage}}{{end}}{{end}}

`

const DESCRIPTION = `
timersd runs the run-of-show for a live event: an ordered list of timers,
each carrying media cues that fire at fixed offsets from its start or end.
The daemon owns the timer and cue state, starts scheduled timers on its
own and pushes every change to connected viewers over websockets.
`

const (
	ServeDescription = `The serve command starts the daemon: the JSON-RPC endpoint
at /jsonrpc, the websocket endpoint at /jsonrpc/ws and the
poller that starts scheduled timers when they are due.

Example:
        timersd serve --listen 127.0.0.1:7780 --events wedding

`
	SeedDescription = `The seed command loads a run-of-show plan (events, timers
and their actions) from a JSON file into the sqlite store.

Example:
        timersd seed plan.json

`
	WatchDescription = `The watch command follows an event live: it subscribes to
the event's updates and shows a countdown for every running
timer together with the cues as they fire.

Example:
        timersd watch wedding

`
	TimerDescription = `The timer command drives timers on a running daemon.

Example:
        timersd timer start wedding ceremony
        timersd timer update ceremony --duration 45 --cascade

`
	ActionDescription = `The action command drives the media cues of a timer.

Example:
        timersd action next ceremony
        timersd action complete <action id>

`
	DemoDescription = `The demo command rehearses an event on a copy of it: reset
the demo event from its template, start it with compressed
timing, or jump straight to a given timer.

Example:
        timersd demo start --mapping demo.json
        timersd demo jump demo-speech --seconds-before 20

`
	SecretDescription = `The secret command prints or rotates the bearer token that
guards the RPC endpoints. The token lives in the OS keyring,
or in a file under the config directory when no keyring is
available.

Example:
        timersd secret show

`
)
