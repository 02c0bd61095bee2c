// Package config resolves timersd settings from the environment. Command
// line flags override individual fields after Load.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultListen       = "127.0.0.1:7780"
	DefaultPollCron     = "* * * * *"
	DefaultPollInterval = 30 * time.Second
	DefaultJumpLead     = 15 * time.Second
	DefaultMaxConns     = 64
	appDirName          = "timersd"
	dbFileName          = "timers.db"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config holds the resolved daemon settings.
type Config struct {
	Listen       string
	ConfigDir    string
	Store        string
	DBPath       string
	PollCron     string
	PollInterval time.Duration
	Events       []string
	DemoMapping  string
	Secret       string
	Location     *time.Location
	JumpLead     time.Duration
	// MaxConns caps concurrent client connections; 0 means no cap.
	MaxConns     int
	Debug        bool
}

// Load reads the process environment.
func Load() (*Config, error) {
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset values.
func FromEnv(getenv func(string) string) (*Config, error) {
	c := &Config{
		Listen:       DefaultListen,
		Store:        StoreSQLite,
		PollCron:     DefaultPollCron,
		PollInterval: DefaultPollInterval,
		JumpLead:     DefaultJumpLead,
		MaxConns:     DefaultMaxConns,
		Location:     time.Local,
	}
	if v := getenv(ListenEnv); v != "" {
		c.Listen = v
	}
	c.ConfigDir = getenv(ConfigDirEnv)
	if c.ConfigDir == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("locate config dir: %w", err)
		}
		c.ConfigDir = filepath.Join(dir, appDirName)
	}
	if v := getenv(StoreEnv); v != "" {
		c.Store = strings.ToLower(v)
	}
	c.DBPath = getenv(DBEnv)
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.ConfigDir, dbFileName)
	}
	// An explicitly empty cron is not distinguishable from unset here; use
	// TIMERS_POLL_CRON=off to poll on the interval only.
	if v := getenv(PollCronEnv); v != "" {
		c.PollCron = v
		if strings.EqualFold(v, "off") {
			c.PollCron = ""
		}
	}
	if v := getenv(PollIntervalEnv); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", PollIntervalEnv, err)
		}
		c.PollInterval = d
	}
	c.Events = SplitList(getenv(EventsEnv))
	c.DemoMapping = getenv(DemoMappingEnv)
	c.Secret = getenv(SecretEnv)
	if v := getenv(TZEnv); v != "" {
		loc, err := time.LoadLocation(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", TZEnv, err)
		}
		c.Location = loc
	}
	if v := getenv(JumpLeadEnv); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", JumpLeadEnv, err)
		}
		c.JumpLead = d
	}
	if v := getenv(MaxConnsEnv); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", MaxConnsEnv, err)
		}
		c.MaxConns = n
	}
	if v := getenv(DebugEnv); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", DebugEnv, err)
		}
		c.Debug = b
	}
	return c, c.Validate()
}

// Validate checks cross-field constraints. It runs again after flags are
// applied.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Store, StoreSQLite, StoreMemory)
	}
	if c.PollCron == "" && c.PollInterval <= 0 {
		return fmt.Errorf("polling needs a cron expression or a positive interval")
	}
	if c.JumpLead < 0 {
		return fmt.Errorf("jump lead must not be negative")
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("max conns must not be negative")
	}
	if c.Listen == "" {
		return fmt.Errorf("listen address is empty")
	}
	return nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
