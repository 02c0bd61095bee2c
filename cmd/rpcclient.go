package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"
	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/tizano/tanstack-wedding-timers-sub000/cmd/common"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/config"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/secret"
)

const (
	defaultURL  = "http://" + config.DefaultListen
	callTimeout = 15 * time.Second
)

var clientFlags = []cli.Flag{
	cli.StringFlag{Name: "url", Usage: "daemon base URL", Value: defaultURL, EnvVar: "TIMERS_URL"},
	cli.StringFlag{Name: "token", Usage: "RPC bearer token (default: the stored secret)", EnvVar: config.SecretEnv},
}

func withClientFlags(flags ...cli.Flag) []cli.Flag {
	return append(append([]cli.Flag{}, clientFlags...), flags...)
}

// bearerClient adds the Authorization header to every bridge request.
type bearerClient struct {
	token string
	next  *http.Client
}

func (c *bearerClient) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.next.Do(req)
}

// clientToken returns --token, or the secret the local daemon would use.
var clientToken = func(ctx *cli.Context) (string, error) {
	if tok := ctx.String("token"); tok != "" {
		return tok, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	tok, _, err := secret.New(afero.NewOsFs(), cfg.ConfigDir, keyringService, nil).Resolve("")
	return tok, err
}

func baseURL(ctx *cli.Context) string {
	return strings.TrimRight(ctx.String("url"), "/")
}

// wsURL turns the daemon base URL into its websocket endpoint.
func wsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/jsonrpc/ws"
	return u.String(), nil
}

// newRPCClient connects a jrpc2 client through the HTTP bridge.
func newRPCClient(ctx *cli.Context) (*jrpc2.Client, error) {
	tok, err := clientToken(ctx)
	if err != nil {
		return nil, err
	}
	ch := jhttp.NewChannel(baseURL(ctx)+"/jsonrpc", &jhttp.ChannelOptions{
		Client: &bearerClient{token: tok, next: &http.Client{Timeout: callTimeout}},
	})
	return jrpc2.NewClient(ch, nil), nil
}

// callAndPrint invokes method and prints the result as indented JSON.
func callAndPrint(ctx *cli.Context, cmd, method string, params any) error {
	cl, err := newRPCClient(ctx)
	if err != nil {
		return common.RuntimeErr(cmd, "new_client", err)
	}
	defer cl.Close()

	cctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	var out json.RawMessage
	if err := cl.CallResult(cctx, method, params, &out); err != nil {
		return common.RuntimeErr(cmd, method, err)
	}
	return printJSON(out)
}

func printJSON(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(common.Out, string(b))
	return err
}

// requireArgs checks that every named positional argument is present.
func requireArgs(ctx *cli.Context, names ...string) error {
	if ctx.NArg() < len(names) {
		return fmt.Errorf("%s: missing argument: %s (see %q)",
			ctx.Command.Name, strings.Join(names[ctx.NArg():], ", "), ctx.App.HelpName+" help "+ctx.Command.Name)
	}
	return nil
}
