package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/tizano/tanstack-wedding-timers-sub000/cmd/common"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/config"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/secret"
)

var secretFs = afero.NewOsFs()

func secretStore() (*secret.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return secret.New(secretFs, cfg.ConfigDir, keyringService, newLogger(cfg.Debug)), cfg, nil
}

var secretCommands = []cli.Command{
	{
		Name:  "show",
		Usage: "print the token the daemon uses, creating one if needed",
		Action: func(ctx *cli.Context) error {
			st, cfg, err := secretStore()
			if err != nil {
				return common.RuntimeErr("secret", "config", err)
			}
			tok, src, err := st.Resolve(cfg.Secret)
			if err != nil {
				return common.RuntimeErr("secret", "resolve", err)
			}
			fmt.Fprintf(common.Out, "%s (%s)\n", tok, src)
			return nil
		},
	},
	{
		Name:  "rotate",
		Usage: "replace the stored token; restart the daemon afterwards",
		Action: func(ctx *cli.Context) error {
			st, _, err := secretStore()
			if err != nil {
				return common.RuntimeErr("secret", "config", err)
			}
			tok, err := st.Rotate()
			if err != nil {
				return common.RuntimeErr("secret", "rotate", err)
			}
			fmt.Fprintln(common.Out, tok)
			return nil
		},
	},
	{
		Name:  "delete",
		Usage: "remove the stored token from the keyring and the config dir",
		Action: func(ctx *cli.Context) error {
			st, _, err := secretStore()
			if err != nil {
				return common.RuntimeErr("secret", "config", err)
			}
			if err := st.Delete(); err != nil {
				return common.RuntimeErr("secret", "delete", err)
			}
			fmt.Fprintln(common.Out, "secret deleted")
			return nil
		},
	},
}
