package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/arloliu/go-synel/logger"
	"github.com/arloliu/go-synel/synel"
)

// Config is the runtime configuration of the gateway.
type Config struct {
	LogLevel logger.Level

	ListenHost  string
	ListenPort  int
	IdleTimeout time.Duration

	ClientPort           int
	ClientConnectTimeout time.Duration
	ClientTimeout        time.Duration
	ClientAttempts       int

	GateBackend   string // "memory" or "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	GateKeyPrefix string
	GateLease     time.Duration

	NATSURL          string
	NATSPrefix       string
	NATSAutoAck      bool
	NATSQueryTimeout time.Duration

	AdminAddr string
}

func defaultConfig() Config {
	return Config{
		LogLevel:             logger.InfoLevel,
		ListenPort:           synel.DefaultPort,
		IdleTimeout:          synel.DefaultIdleTimeout,
		ClientPort:           synel.DefaultPort,
		ClientConnectTimeout: synel.DefaultConnectTimeout,
		ClientTimeout:        synel.DefaultTimeout,
		ClientAttempts:       synel.DefaultAttempts,
		GateBackend:          "memory",
		GateKeyPrefix:        "synel:gate:",
		GateLease:            5 * time.Minute,
		NATSPrefix:           "synel.push",
		NATSAutoAck:          true,
		NATSQueryTimeout:     2 * time.Second,
		AdminAddr:            ":8080",
	}
}

// synelgw config.toml layout.
type fileConfig struct {
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
	Listener struct {
		Host        string `toml:"host"`
		Port        int    `toml:"port"`
		IdleTimeout string `toml:"idle_timeout"`
	} `toml:"listener"`
	Client struct {
		Port           int    `toml:"port"`
		ConnectTimeout string `toml:"connect_timeout"`
		Timeout        string `toml:"timeout"`
		Attempts       int    `toml:"attempts"`
	} `toml:"client"`
	Gatekeeper struct {
		Backend       string `toml:"backend"`
		RedisAddr     string `toml:"redis_addr"`
		RedisPassword string `toml:"redis_password"`
		RedisDB       int    `toml:"redis_db"`
		KeyPrefix     string `toml:"key_prefix"`
		Lease         string `toml:"lease"`
	} `toml:"gatekeeper"`
	NATS struct {
		URL           string `toml:"url"`
		SubjectPrefix string `toml:"subject_prefix"`
		AutoAck       bool   `toml:"auto_ack"`
		QueryTimeout  string `toml:"query_timeout"`
	} `toml:"nats"`
	Admin struct {
		Addr string `toml:"addr"`
	} `toml:"admin"`
}

// loadConfig reads the TOML file at path over the defaults. An empty path
// yields the defaults. Environment overrides are applied afterwards.
func loadConfig(path string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		var raw fileConfig
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("load synelgw config: %w", err)
		}

		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("load synelgw config: unknown key %q", undecoded[0].String())
		}

		if err := overlay(&cfg, &raw, meta); err != nil {
			return Config{}, fmt.Errorf("load synelgw config: %w", err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("load synelgw config: %w", err)
	}

	return cfg, nil
}

func overlay(cfg *Config, raw *fileConfig, meta toml.MetaData) error {
	var err error

	if meta.IsDefined("log", "level") {
		if cfg.LogLevel, err = logger.ParseLevel(raw.Log.Level); err != nil {
			return err
		}
	}

	if meta.IsDefined("listener", "host") {
		cfg.ListenHost = strings.TrimSpace(raw.Listener.Host)
	}
	if meta.IsDefined("listener", "port") {
		cfg.ListenPort = raw.Listener.Port
	}
	if meta.IsDefined("listener", "idle_timeout") {
		if cfg.IdleTimeout, err = parseDuration("listener.idle_timeout", raw.Listener.IdleTimeout); err != nil {
			return err
		}
	}

	if meta.IsDefined("client", "port") {
		cfg.ClientPort = raw.Client.Port
	}
	if meta.IsDefined("client", "connect_timeout") {
		if cfg.ClientConnectTimeout, err = parseDuration("client.connect_timeout", raw.Client.ConnectTimeout); err != nil {
			return err
		}
	}
	if meta.IsDefined("client", "timeout") {
		if cfg.ClientTimeout, err = parseDuration("client.timeout", raw.Client.Timeout); err != nil {
			return err
		}
	}
	if meta.IsDefined("client", "attempts") {
		cfg.ClientAttempts = raw.Client.Attempts
	}

	if meta.IsDefined("gatekeeper", "backend") {
		cfg.GateBackend = strings.ToLower(strings.TrimSpace(raw.Gatekeeper.Backend))
	}
	if meta.IsDefined("gatekeeper", "redis_addr") {
		cfg.RedisAddr = strings.TrimSpace(raw.Gatekeeper.RedisAddr)
	}
	if meta.IsDefined("gatekeeper", "redis_password") {
		cfg.RedisPassword = raw.Gatekeeper.RedisPassword
	}
	if meta.IsDefined("gatekeeper", "redis_db") {
		cfg.RedisDB = raw.Gatekeeper.RedisDB
	}
	if meta.IsDefined("gatekeeper", "key_prefix") {
		cfg.GateKeyPrefix = strings.TrimSpace(raw.Gatekeeper.KeyPrefix)
	}
	if meta.IsDefined("gatekeeper", "lease") {
		if cfg.GateLease, err = parseDuration("gatekeeper.lease", raw.Gatekeeper.Lease); err != nil {
			return err
		}
	}

	if meta.IsDefined("nats", "url") {
		cfg.NATSURL = strings.TrimSpace(raw.NATS.URL)
	}
	if meta.IsDefined("nats", "subject_prefix") {
		cfg.NATSPrefix = strings.TrimSpace(raw.NATS.SubjectPrefix)
	}
	if meta.IsDefined("nats", "auto_ack") {
		cfg.NATSAutoAck = raw.NATS.AutoAck
	}
	if meta.IsDefined("nats", "query_timeout") {
		if cfg.NATSQueryTimeout, err = parseDuration("nats.query_timeout", raw.NATS.QueryTimeout); err != nil {
			return err
		}
	}

	if meta.IsDefined("admin", "addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.Admin.Addr)
	}

	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if getenv == nil {
		return nil
	}

	if v := getenv("SYNEL_LOG_LEVEL"); v != "" {
		level, err := logger.ParseLevel(v)
		if err != nil {
			return fmt.Errorf("SYNEL_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}
	if v := getenv("SYNEL_NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := getenv("SYNEL_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
		cfg.GateBackend = "redis"
	}

	return nil
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}

	return d, nil
}

func (cfg Config) validate() error {
	switch cfg.GateBackend {
	case "memory":
	case "redis":
		if cfg.RedisAddr == "" {
			return fmt.Errorf("gatekeeper.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported gatekeeper backend %q (expected memory or redis)", cfg.GateBackend)
	}

	if cfg.ListenPort < 0 || cfg.ListenPort > 65535 {
		return fmt.Errorf("listener.port %d out of range", cfg.ListenPort)
	}
	if cfg.ClientPort < 1 || cfg.ClientPort > 65535 {
		return fmt.Errorf("client.port %d out of range", cfg.ClientPort)
	}

	return nil
}
