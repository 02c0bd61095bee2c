package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/tizano/tanstack-wedding-timers-sub000/cmd/common"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/config"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/notify"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/poller"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/secret"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/seed"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/server"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/store/memstore"
	"github.com/tizano/tanstack-wedding-timers-sub000/internal/store/sqlite"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/logger"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/naive"
	"github.com/tizano/tanstack-wedding-timers-sub000/pkg/runshow"
)

const (
	keyringService  = "timersd"
	shutdownTimeout = 5 * time.Second
)

var serveFlags = []cli.Flag{
	cli.StringFlag{Name: "listen, l", Usage: "address to listen on", EnvVar: config.ListenEnv},
	cli.StringFlag{Name: "store", Usage: "store backend: sqlite or memory", EnvVar: config.StoreEnv},
	cli.StringFlag{Name: "db", Usage: "sqlite database path", EnvVar: config.DBEnv},
	cli.StringFlag{Name: "poll-cron", Usage: `5-field cron cadence for due checks ("off" for interval only)`, EnvVar: config.PollCronEnv},
	cli.DurationFlag{Name: "poll-interval", Usage: "fixed cadence for due checks when cron is off", EnvVar: config.PollIntervalEnv},
	cli.StringFlag{Name: "events", Usage: "comma-separated event ids to poll (default: all)", EnvVar: config.EventsEnv},
	cli.StringFlag{Name: "demo-mapping", Usage: "demo mapping JSON used when demo calls omit one", EnvVar: config.DemoMappingEnv},
	cli.StringFlag{Name: "seed", Usage: "plan JSON loaded into the store at startup"},
	cli.IntFlag{Name: "max-conns", Usage: "cap on concurrent client connections (0 for none)", EnvVar: config.MaxConnsEnv},
	cli.BoolFlag{Name: "debug, d", Usage: "enable debug logging", EnvVar: config.DebugEnv},
}

// appStore is what both store backends provide.
type appStore interface {
	runshow.Store
	server.EventLister
	seed.Inserter
}

// components holds everything serve wires together.
type components struct {
	cfg     *config.Config
	log     *logger.StandardLogger
	store   appStore
	hub     *notify.Hub
	actions *runshow.ActionManager
	timers  *runshow.TimerManager
	rpc     *server.RPCServer
	web     *server.WebServer
}

// Close releases the store.
func (c *components) Close() {
	if cl, ok := c.store.(io.Closer); ok {
		if err := cl.Close(); err != nil {
			c.log.Error("closing store: %v", err)
		}
	}
}

// loadServeConfig reads the environment and applies explicitly set flags.
func loadServeConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if ctx.IsSet("listen") {
		cfg.Listen = ctx.String("listen")
	}
	if ctx.IsSet("store") {
		cfg.Store = ctx.String("store")
	}
	if ctx.IsSet("db") {
		cfg.DBPath = ctx.String("db")
	}
	if ctx.IsSet("poll-cron") {
		cfg.PollCron = ctx.String("poll-cron")
		if cfg.PollCron == "off" {
			cfg.PollCron = ""
		}
	}
	if ctx.IsSet("poll-interval") {
		cfg.PollInterval = ctx.Duration("poll-interval")
	}
	if ctx.IsSet("events") {
		cfg.Events = config.SplitList(ctx.String("events"))
	}
	if ctx.IsSet("demo-mapping") {
		cfg.DemoMapping = ctx.String("demo-mapping")
	}
	if ctx.IsSet("max-conns") {
		cfg.MaxConns = ctx.Int("max-conns")
	}
	if ctx.IsSet("debug") {
		cfg.Debug = ctx.Bool("debug")
	}
	if cfg.PollCron != "" && !poller.ValidCron(cfg.PollCron) {
		return nil, fmt.Errorf("invalid poll cron %q, expected 5-field format (minute hour day-of-month month day-of-week)", cfg.PollCron)
	}
	return cfg, cfg.Validate()
}

func newLogger(debug bool) *logger.StandardLogger {
	l := logger.NewStandardLogger(log.New(os.Stderr, "", log.LstdFlags))
	if debug {
		l.EnableDebug()
	}
	return l
}

func openStore(cfg *config.Config) (appStore, error) {
	if cfg.Store == config.StoreMemory {
		return memstore.New(), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return sqlite.Open(cfg.DBPath)
}

// initComponents opens the store and builds the engine and the RPC server.
// fs is used for the demo mapping file.
func initComponents(cfg *config.Config, l *logger.StandardLogger, fs afero.Fs, token string) (*components, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	c := &components{cfg: cfg, log: l, store: st}

	var demo *runshow.DemoMapping
	if cfg.DemoMapping != "" {
		demo, err = seed.LoadMapping(fs, cfg.DemoMapping)
		if err != nil {
			c.Close()
			return nil, err
		}
	}

	clock := naive.NewWallClock(cfg.Location)
	c.hub = notify.NewHub(l.Named("hub"))
	n := runshow.NewNotifier(c.hub, l.Named("notify"))
	c.actions = runshow.NewActionManager(st, clock, n, l.Named("actions"))
	c.timers = runshow.NewTimerManager(st, clock, c.actions, n, l.Named("timers"))
	c.rpc = server.NewRPCServer(&server.RPCConfig{
		Secret:   token,
		Version:  currentBuildArgs.Version,
		Commit:   currentBuildArgs.Commit,
		JumpLead: cfg.JumpLead,
		Demo:     demo,
	}, c.timers, c.actions, st, c.hub, l.Named("rpc"))
	c.web = server.NewWebServer(l.Named("web"), cfg.Listen, c.rpc)
	return c, nil
}

// pollTargets returns the configured events, or every stored event.
func (c *components) pollTargets(ctx context.Context) ([]string, error) {
	if len(c.cfg.Events) > 0 {
		return c.cfg.Events, nil
	}
	events, err := c.store.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	return ids, nil
}

// run serves on ln and polls until ctx ends or a component fails.
func (c *components) run(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	targets, err := c.pollTargets(ctx)
	if err != nil {
		ln.Close()
		return err
	}
	p := poller.New(gctx, c.timers, c.log.Named("poller"))
	for _, id := range targets {
		if err := p.Track(id, c.cfg.PollCron, c.cfg.PollInterval); err != nil {
			ln.Close()
			return err
		}
	}
	c.log.Info("polling %d event(s)", len(targets))

	if c.cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, c.cfg.MaxConns)
	}

	g.Go(func() error {
		return c.web.Serve(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return c.web.Shutdown(sctx)
	})
	g.Go(func() error {
		p.Wait()
		return nil
	})
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serve(ctx *cli.Context) error {
	cfg, err := loadServeConfig(ctx)
	if err != nil {
		return common.RuntimeErr("serve", "config", err)
	}
	l := newLogger(cfg.Debug)
	fs := afero.NewOsFs()

	token, src, err := secret.New(fs, cfg.ConfigDir, keyringService, l.Named("secret")).Resolve(cfg.Secret)
	if err != nil {
		return common.RuntimeErr("serve", "secret", err)
	}
	l.Info("rpc secret loaded from %s", src)

	c, err := initComponents(cfg, l, fs, token)
	if err != nil {
		return common.RuntimeErr("serve", "init", err)
	}
	defer c.Close()

	if plan := ctx.String("seed"); plan != "" {
		p, err := seed.LoadPlan(fs, plan)
		if err != nil {
			return common.RuntimeErr("serve", "seed", err)
		}
		res, err := seed.Apply(context.Background(), c.store, p)
		if err != nil {
			return common.RuntimeErr("serve", "seed", err)
		}
		l.Info("seeded %d event(s), %d timer(s), %d action(s)", len(res.EventIDs), res.Timers, res.Actions)
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return common.RuntimeErr("serve", "listen", err)
	}
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := c.run(sigCtx, ln); err != nil {
		return common.RuntimeErr("serve", "run", err)
	}
	l.Info("daemon stopped")
	return nil
}
