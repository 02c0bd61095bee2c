package config

// Environment variable names for configuration.
const (
	// ListenEnv is the address the RPC server listens on.
	ListenEnv = "TIMERS_LISTEN"

	// ConfigDirEnv overrides the per-user config directory.
	ConfigDirEnv = "TIMERS_CONFIG_DIR"

	// StoreEnv selects the store backend: "sqlite" or "memory".
	StoreEnv = "TIMERS_STORE"

	// DBEnv is the sqlite database path.
	DBEnv = "TIMERS_DB"

	PollCronEnv     = "TIMERS_POLL_CRON"
	PollIntervalEnv = "TIMERS_POLL_INTERVAL"

	// EventsEnv is a comma-separated list of event ids to poll. Empty means
	// every event in the store.
	EventsEnv = "TIMERS_EVENTS"

	// DemoMappingEnv is the path to a demo mapping JSON file.
	DemoMappingEnv = "TIMERS_DEMO_MAPPING"

	// SecretEnv overrides the stored RPC bearer token.
	SecretEnv = "TIMERS_RPC_SECRET"

	// TZEnv is the IANA zone the naive clock reads wall time in.
	TZEnv = "TIMERS_TZ"

	// JumpLeadEnv is the default lead for the jump operations.
	JumpLeadEnv = "TIMERS_JUMP_LEAD"

	// MaxConnsEnv caps concurrent connections to the listener.
	MaxConnsEnv = "TIMERS_MAX_CONNS"

	// DebugEnv enables debug logging.
	DebugEnv = "TIMERS_DEBUG"
)
