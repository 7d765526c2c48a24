package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/volume"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugasun/teus/pkg/docker"
	"github.com/yugasun/teus/pkg/errors"
	"github.com/yugasun/teus/pkg/observability"
	"github.com/yugasun/teus/test/mocks"
)

func newTestServer(t *testing.T, metrics *observability.MetricsManager) (*mocks.MockDockerClient, *httptest.Server) {
	t.Helper()
	m := mocks.NewMockDockerClient()
	srv := httptest.NewServer(NewServer("", m, metrics, nil).Handler())
	t.Cleanup(srv.Close)
	return m, srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestVersionRoute(t *testing.T) {
	m, srv := newTestServer(t, nil)
	m.VersionResult = types.Version{Version: "27.0.3", APIVersion: "1.46"}

	var v types.Version
	status := getJSON(t, srv.URL+"/docker/version", &v)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "27.0.3", v.Version)
}

func TestContainersRoute(t *testing.T) {
	m, srv := newTestServer(t, nil)
	m.Containers = []container.Summary{{ID: "abc", Names: []string{"/web"}}}

	t.Run("All flag", func(t *testing.T) {
		var list []container.Summary
		status := getJSON(t, srv.URL+"/docker/containers?all=true", &list)
		assert.Equal(t, http.StatusOK, status)
		require.Len(t, list, 1)
		assert.Equal(t, "abc", list[0].ID)
		assert.Contains(t, m.Recorded(), "container_list all=true")
	})

	t.Run("No query", func(t *testing.T) {
		status := getJSON(t, srv.URL+"/docker/containers", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, m.Recorded(), "container_list")
	})

	t.Run("Filters", func(t *testing.T) {
		status := getJSON(t, srv.URL+"/docker/containers?filter=status%3Drunning", nil)
		assert.Equal(t, http.StatusOK, status)

		calls := m.Recorded()
		last := calls[len(calls)-1]
		values, err := url.ParseQuery(last[len("container_list "):])
		require.NoError(t, err)
		args, err := filters.FromJSON(values.Get("filters"))
		require.NoError(t, err)
		assert.Equal(t, []string{"running"}, args.Get("status"))
		assert.False(t, values.Has("all"))
	})

	t.Run("Bad all value", func(t *testing.T) {
		var body errorBody
		status := getJSON(t, srv.URL+"/docker/containers?all=maybe", &body)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, body.Message, "invalid value for all")
	})

	t.Run("Bad filter", func(t *testing.T) {
		status := getJSON(t, srv.URL+"/docker/containers?filter=novalue", nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestContainerRoute(t *testing.T) {
	m, srv := newTestServer(t, nil)
	m.Inspected["abc"] = container.InspectResponse{ContainerJSONBase: &container.ContainerJSONBase{ID: "abc", Name: "/web"}}

	t.Run("Found", func(t *testing.T) {
		var info container.InspectResponse
		status := getJSON(t, srv.URL+"/docker/container/abc", &info)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "/web", info.Name)
	})

	t.Run("Not found", func(t *testing.T) {
		var body errorBody
		status := getJSON(t, srv.URL+"/docker/container/missing", &body)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, "No such container: missing", body.Message)
	})
}

func TestVolumeRoutes(t *testing.T) {
	m, srv := newTestServer(t, nil)
	m.Volumes = volume.ListResponse{Volumes: []*volume.Volume{{Name: "data", Driver: "local"}}}

	var list volume.ListResponse
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/docker/volumes", &list))
	require.Len(t, list.Volumes, 1)

	var vol volume.Volume
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/docker/volumes/data", &vol))
	assert.Equal(t, "local", vol.Driver)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/docker/volumes/nope", nil))
}

func TestOtherRoutes(t *testing.T) {
	_, srv := newTestServer(t, nil)

	for _, path := range []string{"/docker/info", "/docker/ping", "/docker/images?all=1", "/docker/networks"} {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+path, nil))
		})
	}

	t.Run("Unknown route", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/docker/unknown")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Wrong method", func(t *testing.T) {
		resp, err := http.Post(srv.URL+"/docker/version", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"connection", errors.NewConnectionError("docker", "cannot connect", nil), http.StatusServiceUnavailable},
		{"transport", errors.NewTransportError("docker", "read", io.ErrUnexpectedEOF), http.StatusBadGateway},
		{"frame", errors.NewFrameError("docker", "no separator", nil), http.StatusBadGateway},
		{"generic", errors.NewGenericError("docker", "boom"), http.StatusInternalServerError},
		{"not found", errors.NewNotFoundError("docker", "x", "gone"), http.StatusNotFound},
		{"plain", io.EOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, srv := newTestServer(t, nil)
			m.Errors[docker.OpInfo] = tt.err

			var body errorBody
			status := getJSON(t, srv.URL+"/docker/info", &body)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestRouteTelemetryReportsFailures(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = orig }()

	m := mocks.NewMockDockerClient()
	telemetry := observability.NewTelemetryManager(true, "teus", "test", "test")
	handler := NewServer("", m, nil, telemetry).Handler()

	serve := func(path string) int {
		buf.Reset()
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, serve("/docker/version"))
	assert.Contains(t, buf.String(), "Operation completed successfully")

	m.Errors[docker.OpInfo] = errors.NewGenericError("docker", "boom")
	assert.Equal(t, http.StatusInternalServerError, serve("/docker/info"))
	assert.Contains(t, buf.String(), "Operation failed")
	assert.Contains(t, buf.String(), "boom")

	m.Errors[docker.OpPing] = errors.NewConnectionError("docker", "cannot connect", nil)
	assert.Equal(t, http.StatusServiceUnavailable, serve("/healthz"))
	assert.Contains(t, buf.String(), "Operation failed")
	assert.Contains(t, buf.String(), "answered 503")
}

func TestHealthz(t *testing.T) {
	m, srv := newTestServer(t, nil)

	var body healthBody
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "OK", body.Daemon)

	m.Errors[docker.OpPing] = errors.NewConnectionError("docker", "cannot connect", nil)
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/healthz", &body))
	assert.Equal(t, "unhealthy", body.Status)
}

func TestMetricsRoute(t *testing.T) {
	t.Run("Enabled", func(t *testing.T) {
		_, srv := newTestServer(t, observability.NewMetricsManager(true, "teus"))

		getJSON(t, srv.URL+"/docker/version", nil)

		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "teus_http_requests_total")
	})

	t.Run("Disabled", func(t *testing.T) {
		_, srv := newTestServer(t, nil)
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestServeShutdown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer("", mocks.NewMockDockerClient(), nil, nil).Serve(ctx, l)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + l.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
