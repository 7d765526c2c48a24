package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugasun/teus/pkg/errors"
)

// isolate keeps the host environment out of ParseConfig
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("DOCKER_HOST", "")
	for _, key := range []string{"SOCKET", "HOST", "LOG_LEVEL", "LOG_FORMAT", "CONCURRENCY", "IO_TIMEOUT", "CONFIG_FILE", "PROFILE"} {
		t.Setenv(EnvPrefix+key, "")
		os.Unsetenv(EnvPrefix + key)
	}
	return home
}

func TestParseConfigDefaults(t *testing.T) {
	isolate(t)

	cfg, rest, err := ParseConfig([]string{"containers", "--all"})
	require.NoError(t, err)

	assert.Equal(t, []string{"containers", "--all"}, rest)
	assert.Equal(t, "/var/run/docker.sock", cfg.SocketPath)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, 30*time.Second, cfg.IOTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Concurrency)
}

func TestParseConfigFlags(t *testing.T) {
	isolate(t)

	cfg, rest, err := ParseConfig([]string{
		"--socket", "/tmp/custom.sock",
		"--log-level", "debug",
		"--io-timeout", "2s",
		"--concurrency", "8",
		"container", "abc",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"container", "abc"}, rest)
	assert.Equal(t, "/tmp/custom.sock", cfg.SocketPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.IOTimeout)
	assert.Equal(t, 8, cfg.Concurrency)

	cc := cfg.ClientConfig()
	assert.Equal(t, "/tmp/custom.sock", cc.SocketPath)
	assert.Equal(t, 2*time.Second, cc.IOTimeout)
}

func TestParseConfigEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("TEUS_HOST", "docker")
	t.Setenv("TEUS_CONCURRENCY", "2")

	cfg, _, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "docker", cfg.Host)
	assert.Equal(t, 2, cfg.Concurrency)
}

func TestParseConfigDockerHost(t *testing.T) {
	t.Run("Unix socket", func(t *testing.T) {
		isolate(t)
		t.Setenv("DOCKER_HOST", "unix:///run/user/1000/docker.sock")

		cfg, _, err := ParseConfig(nil)
		require.NoError(t, err)
		assert.Equal(t, "/run/user/1000/docker.sock", cfg.SocketPath)
	})

	t.Run("Flag wins over DOCKER_HOST", func(t *testing.T) {
		isolate(t)
		t.Setenv("DOCKER_HOST", "unix:///run/user/1000/docker.sock")

		cfg, _, err := ParseConfig([]string{"--socket", "/tmp/other.sock"})
		require.NoError(t, err)
		assert.Equal(t, "/tmp/other.sock", cfg.SocketPath)
	})

	t.Run("TCP is rejected", func(t *testing.T) {
		isolate(t)
		t.Setenv("DOCKER_HOST", "tcp://127.0.0.1:2375")

		_, _, err := ParseConfig(nil)
		require.Error(t, err)
		assert.True(t, errors.IsValidationError(err))
	})
}

func TestParseConfigFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "teus.yaml")
	content := `
socket: /srv/docker.sock
log-level: warn
io-timeout: 10s
profiles:
  ci:
    concurrency: 1
    log-format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Run("Plain", func(t *testing.T) {
		cfg, _, err := ParseConfig([]string{"--config", path})
		require.NoError(t, err)
		assert.Equal(t, "/srv/docker.sock", cfg.SocketPath)
		assert.Equal(t, "warn", cfg.LogLevel)
		assert.Equal(t, 10*time.Second, cfg.IOTimeout)
		assert.Equal(t, 4, cfg.Concurrency)
	})

	t.Run("Flags override file", func(t *testing.T) {
		cfg, _, err := ParseConfig([]string{"--config", path, "--log-level", "error"})
		require.NoError(t, err)
		assert.Equal(t, "error", cfg.LogLevel)
	})

	t.Run("Profile", func(t *testing.T) {
		cfg, _, err := ParseConfig([]string{"--config", path, "--profile", "ci"})
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.Concurrency)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, "/srv/docker.sock", cfg.SocketPath)
	})
}

func TestParseConfigHelp(t *testing.T) {
	isolate(t)

	_, rest, err := ParseConfig([]string{"--help"})
	require.NoError(t, err)
	assert.Equal(t, []string{"help"}, rest)
}

func TestParseConfigBadFlag(t *testing.T) {
	isolate(t)

	_, _, err := ParseConfig([]string{"--no-such-flag"})
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty socket", func(c *Config) { c.SocketPath = "" }},
		{"empty host", func(c *Config) { c.Host = "" }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"zero io timeout", func(c *Config) { c.IOTimeout = 0 }},
		{"negative dial timeout", func(c *Config) { c.DialTimeout = -time.Second }},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
	}

	require.NoError(t, DefaultConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsValidationError(err))
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEUS_TEST_INT", "12")
	t.Setenv("TEUS_TEST_BAD_INT", "twelve")
	t.Setenv("TEUS_TEST_DUR", "3s")
	t.Setenv("TEUS_TEST_BOOL", "yes")

	assert.Equal(t, 12, getEnvInt("TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("TEST_BAD_INT", 1))
	assert.Equal(t, 3*time.Second, getEnvDuration("TEST_DUR", time.Second))
	assert.True(t, getBoolEnv("TEST_BOOL", false))
	assert.Equal(t, "fallback", getEnv("TEST_MISSING", "fallback"))
}

func TestLoadEnvFile(t *testing.T) {
	home := isolate(t)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".teus"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".teus", ".env"), []byte("TEUS_FROM_DOTENV=loaded\n"), 0o600))
	t.Setenv("TEUS_FROM_DOTENV", "")
	os.Unsetenv("TEUS_FROM_DOTENV")

	loadEnvFile()
	assert.Equal(t, "loaded", os.Getenv("TEUS_FROM_DOTENV"))
}
