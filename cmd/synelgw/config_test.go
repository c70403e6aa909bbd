package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arloliu/go-synel/logger"
	"github.com/arloliu/go-synel/synel"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "synelgw.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func noEnv(string) string { return "" }

func TestLoadConfig_Defaults(t *testing.T) {
	require := require.New(t)

	cfg, err := loadConfig("", noEnv)
	require.NoError(err)
	require.Equal(defaultConfig(), cfg)
	require.Equal(synel.DefaultPort, cfg.ListenPort)
	require.Equal(synel.DefaultIdleTimeout, cfg.IdleTimeout)
	require.Equal("memory", cfg.GateBackend)
	require.Empty(cfg.NATSURL)
}

func TestLoadConfig_File(t *testing.T) {
	require := require.New(t)

	path := writeConfig(t, `
[log]
level = "debug"

[listener]
host = "127.0.0.1"
port = 4000
idle_timeout = "10s"

[client]
timeout = "2s"
attempts = 3

[gatekeeper]
backend = "redis"
redis_addr = "localhost:6379"
lease = "1m"

[nats]
url = "nats://localhost:4222"
subject_prefix = "site1"
auto_ack = false

[admin]
addr = ":9090"
`)

	cfg, err := loadConfig(path, noEnv)
	require.NoError(err)

	require.Equal(logger.DebugLevel, cfg.LogLevel)
	require.Equal("127.0.0.1", cfg.ListenHost)
	require.Equal(4000, cfg.ListenPort)
	require.Equal(10*time.Second, cfg.IdleTimeout)
	require.Equal(2*time.Second, cfg.ClientTimeout)
	require.Equal(3, cfg.ClientAttempts)
	require.Equal("redis", cfg.GateBackend)
	require.Equal("localhost:6379", cfg.RedisAddr)
	require.Equal(time.Minute, cfg.GateLease)
	require.Equal("nats://localhost:4222", cfg.NATSURL)
	require.Equal("site1", cfg.NATSPrefix)
	require.False(cfg.NATSAutoAck)
	require.Equal(":9090", cfg.AdminAddr)

	// untouched keys keep their defaults
	require.Equal(synel.DefaultPort, cfg.ClientPort)
	require.Equal(synel.DefaultConnectTimeout, cfg.ClientConnectTimeout)
	require.Equal("synel:gate:", cfg.GateKeyPrefix)
}

func TestLoadConfig_PortZeroIsKept(t *testing.T) {
	path := writeConfig(t, "[listener]\nport = 0\n")

	cfg, err := loadConfig(path, noEnv)
	require.NoError(t, err)
	require.Equal(t, 0, cfg.ListenPort)
}

func TestLoadConfig_Env(t *testing.T) {
	require := require.New(t)

	env := map[string]string{
		"SYNEL_LOG_LEVEL":  "warn",
		"SYNEL_NATS_URL":   "nats://bus:4222",
		"SYNEL_REDIS_ADDR": "cache:6379",
	}

	cfg, err := loadConfig("", func(k string) string { return env[k] })
	require.NoError(err)
	require.Equal(logger.WarnLevel, cfg.LogLevel)
	require.Equal("nats://bus:4222", cfg.NATSURL)
	require.Equal("redis", cfg.GateBackend)
	require.Equal("cache:6379", cfg.RedisAddr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad syntax", "[listener\n"},
		{"unknown key", "[listener]\nbogus = 1\n"},
		{"bad duration", "[listener]\nidle_timeout = \"soon\"\n"},
		{"bad level", "[log]\nlevel = \"loud\"\n"},
		{"bad backend", "[gatekeeper]\nbackend = \"etcd\"\n"},
		{"redis without addr", "[gatekeeper]\nbackend = \"redis\"\n"},
		{"listener port range", "[listener]\nport = 70000\n"},
		{"client port zero", "[client]\nport = 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(writeConfig(t, tt.body), noEnv)
			require.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml"), noEnv)
	require.Error(t, err)
}

func TestLoadConfig_BadEnvLevel(t *testing.T) {
	_, err := loadConfig("", func(k string) string {
		if k == "SYNEL_LOG_LEVEL" {
			return "chatty"
		}
		return ""
	})
	require.ErrorContains(t, err, "SYNEL_LOG_LEVEL")
}
