package di

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugasun/teus/internal/config"
	"github.com/yugasun/teus/pkg/docker"
	"github.com/yugasun/teus/pkg/errors"
)

type pingTransport struct{}

func (pingTransport) RoundTrip(context.Context, []byte) ([]byte, error) {
	return []byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nOK"), nil
}

func TestInitialize(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MetricsEnabled = true

	c := New()
	require.NoError(t, c.Initialize(context.Background(), cfg, "test", docker.WithTransport(pingTransport{})))

	assert.Same(t, cfg, c.GetConfig())
	require.NotNil(t, c.GetDockerClient())
	assert.NotNil(t, c.GetCollector())
	assert.NotNil(t, c.GetAPIServer())
	assert.NotNil(t, c.GetTelemetryManager())
	assert.True(t, c.GetMetricsManager().Enabled())

	pong, err := c.GetDockerClient().Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "OK", pong)

	// a second Initialize is a no-op
	require.NoError(t, c.Initialize(context.Background(), config.DefaultConfig(), "other"))
	assert.Same(t, cfg, c.GetConfig())

	require.NoError(t, c.Cleanup())
	assert.Nil(t, c.GetDockerClient())
	assert.Nil(t, c.GetAPIServer())
}

func TestInitializeMissingSocket(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SocketPath = filepath.Join(t.TempDir(), "missing.sock")

	err := New().Initialize(context.Background(), cfg, "test")
	require.Error(t, err)
	assert.True(t, errors.IsConnectionError(err))
}

func TestGetInstance(t *testing.T) {
	assert.Same(t, GetInstance(), GetInstance())
}
