package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/system"
	"github.com/docker/docker/api/types/volume"
	"github.com/rs/zerolog/log"

	"github.com/yugasun/teus/pkg/errors"
	"github.com/yugasun/teus/pkg/observability"
)

// ClientInterface defines the read operations served by the daemon
type ClientInterface interface {
	Version(ctx context.Context) (types.Version, error)
	Info(ctx context.Context) (system.Info, error)
	Ping(ctx context.Context) (string, error)
	ContainerList(ctx context.Context, query string) ([]container.Summary, error)
	ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error)
	VolumeList(ctx context.Context, query string) (volume.ListResponse, error)
	VolumeInspect(ctx context.Context, name string) (volume.Volume, error)
	ImageList(ctx context.Context, query string) ([]image.Summary, error)
	NetworkList(ctx context.Context, query string) ([]network.Summary, error)
	Close() error
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// Client is a Docker Engine API client speaking raw HTTP/1.1 over a Unix socket
type Client struct {
	transport Transport
	host      string
	metrics   *observability.MetricsManager
	telemetry *observability.TelemetryManager
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithTransport replaces the Unix socket transport
func WithTransport(t Transport) ClientOption {
	return func(c *Client) { c.transport = t }
}

// WithMetrics records every round trip in m
func WithMetrics(m *observability.MetricsManager) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithTelemetry reports every round trip as a dependency call
func WithTelemetry(t *observability.TelemetryManager) ClientOption {
	return func(c *Client) { c.telemetry = t }
}

// NewClient creates a client for cfg. Unless WithTransport is given, the socket
// is dialled once so a missing daemon is reported immediately.
func NewClient(ctx context.Context, cfg ClientConfig, opts ...ClientOption) (*Client, error) {
	c := &Client{host: cfg.Host}
	if c.host == "" {
		c.host = "localhost"
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.transport == nil {
		topts := []TransportOption{
			WithDialTimeout(cfg.DialTimeout),
			WithIOTimeout(cfg.IOTimeout),
		}
		if cfg.Serialize {
			topts = append(topts, Serialize())
		}
		t, err := NewUnixTransport(ctx, cfg.SocketPath, topts...)
		if err != nil {
			return nil, err
		}
		c.transport = t
	}

	return c, nil
}

// Do performs a single round trip and returns the framed response
func (c *Client) Do(ctx context.Context, method Method, ep Endpoint, query string) (*Response, error) {
	if !ep.Op.AcceptsQuery() {
		query = ""
	}

	path := ep.Path()
	start := time.Now()
	raw, err := c.transport.RoundTrip(ctx, FormatRequest(method, path, query, c.host))

	var resp *Response
	if err == nil {
		resp, err = ParseResponse(raw)
	}

	c.record(ctx, ep, start, resp, len(raw), err)
	if err != nil {
		log.Warn().Err(err).Str("operation", ep.Op.String()).Str("path", path).Msg("Docker request failed")
		return nil, err
	}

	log.Debug().
		Str("operation", ep.Op.String()).
		Str("path", path).
		Int("status", resp.StatusCode).
		Int("bytes", len(resp.Body)).
		Bool("chunked", resp.Chunked()).
		Dur("duration", time.Since(start)).
		Msg("Docker request completed")

	return resp, nil
}

func (c *Client) record(ctx context.Context, ep Endpoint, start time.Time, resp *Response, size int, err error) {
	result := "ok"
	switch {
	case err != nil:
		result = string(errors.TypeOf(err))
	case resp.StatusCode >= http.StatusBadRequest:
		result = "daemon_error"
		err = fmt.Errorf("daemon answered %s", resp.Status)
	}

	c.metrics.RecordDockerRequest(ep.Op.String(), result, time.Since(start), size)
	c.telemetry.RecordDependency(ctx, "docker", ep.String(), start, result == "ok", err)
}

// call performs the round trip for ep and decodes the body into T, falling
// back to the daemon error shape and finally to the raw body.
func call[T any](ctx context.Context, c *Client, ep Endpoint, query string) (T, error) {
	var out T

	resp, err := c.Do(ctx, MethodGet, ep, query)
	if err != nil {
		return out, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return out, statusError(ep, resp)
	}

	var fields map[string]json.RawMessage
	isObject := json.Unmarshal(resp.Body, &fields) == nil && fields != nil
	if _, ok := fields["message"]; isObject && ok && len(fields) == 1 {
		return out, bodyError(resp.Body)
	}

	// Unknown fields are ignored, so an object sharing no field with T
	// decodes to the zero value.
	if err := json.Unmarshal(resp.Body, &out); err == nil {
		if !isObject || len(fields) == 0 || !reflect.ValueOf(&out).Elem().IsZero() {
			return out, nil
		}
	}

	var zero T
	return zero, bodyError(resp.Body)
}

func statusError(ep Endpoint, resp *Response) error {
	var de daemonError
	message := strings.TrimSpace(string(resp.Body))
	if err := json.Unmarshal(resp.Body, &de); err == nil && de.Message != "" {
		message = de.Message
	}
	if message == "" {
		message = resp.Status
	}

	if resp.StatusCode == http.StatusNotFound && ep.Param != "" {
		return errors.NewNotFoundError("docker", ep.Param, message).
			WithDetail("status", resp.StatusCode)
	}
	return errors.NewGenericError("docker", message).WithDetail("status", resp.StatusCode)
}

func bodyError(body []byte) error {
	var de daemonError
	if err := json.Unmarshal(body, &de); err == nil && de.Message != "" {
		return errors.NewGenericError("docker", de.Message)
	}
	return errors.NewGenericError("docker", fmt.Sprintf("failed to parse Docker response: %s", body))
}

// Version returns the daemon version document
func (c *Client) Version(ctx context.Context) (types.Version, error) {
	return call[types.Version](ctx, c, Version(), "")
}

// Info returns system-wide daemon information
func (c *Client) Info(ctx context.Context) (system.Info, error) {
	return call[system.Info](ctx, c, Info(), "")
}

// Ping checks that the daemon answers; the body is plain text, usually "OK".
func (c *Client) Ping(ctx context.Context) (string, error) {
	resp, err := c.Do(ctx, MethodGet, Ping(), "")
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", statusError(Ping(), resp)
	}
	return strings.TrimSpace(string(resp.Body)), nil
}

// ContainerList lists containers; query is passed through, e.g. "all=true".
func (c *Client) ContainerList(ctx context.Context, query string) ([]container.Summary, error) {
	return call[[]container.Summary](ctx, c, ContainerList(), query)
}

// ContainerInspect returns low-level information about one container
func (c *Client) ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error) {
	return call[container.InspectResponse](ctx, c, ContainerInspect(id), "")
}

// VolumeList lists volumes
func (c *Client) VolumeList(ctx context.Context, query string) (volume.ListResponse, error) {
	return call[volume.ListResponse](ctx, c, VolumeList(), query)
}

// VolumeInspect returns one volume by name
func (c *Client) VolumeInspect(ctx context.Context, name string) (volume.Volume, error) {
	return call[volume.Volume](ctx, c, VolumeInspect(name), "")
}

// ImageList lists images
func (c *Client) ImageList(ctx context.Context, query string) ([]image.Summary, error) {
	return call[[]image.Summary](ctx, c, ImageList(), query)
}

// NetworkList lists networks
func (c *Client) NetworkList(ctx context.Context, query string) ([]network.Summary, error) {
	return call[[]network.Summary](ctx, c, NetworkList(), query)
}

// Close releases the client. Connections never outlive a call, so there is
// nothing to tear down.
func (c *Client) Close() error {
	return nil
}
