package di

import (
	"context"
	stdsync "sync"

	"github.com/yugasun/teus/internal/api"
	"github.com/yugasun/teus/internal/config"
	"github.com/yugasun/teus/pkg/docker"
	"github.com/yugasun/teus/pkg/errors"
	"github.com/yugasun/teus/pkg/observability"
	"github.com/yugasun/teus/pkg/snapshot"
)

// ServiceName labels metrics and telemetry
const ServiceName = "teus"

// Container is a dependency injection container that manages application services
type Container struct {
	config           *config.Config
	version          string
	dockerClient     docker.ClientInterface
	collector        *snapshot.Collector
	apiServer        *api.Server
	telemetryManager *observability.TelemetryManager
	metricsManager   *observability.MetricsManager
	mutex            stdsync.Mutex
	initialized      bool
}

var (
	// instance is the singleton instance of the DI container
	instance *Container
	// once ensures the singleton is initialized only once
	once stdsync.Once
)

// GetInstance returns the singleton instance of the DI container
func GetInstance() *Container {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// New returns an empty container, mainly for tests
func New() *Container {
	return &Container{}
}

// Initialize builds every service from cfg. Extra client options are passed
// to the docker client, e.g. a replacement transport.
func (c *Container) Initialize(ctx context.Context, cfg *config.Config, version string, opts ...docker.ClientOption) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.initialized {
		return nil
	}

	c.config = cfg
	c.version = version

	if err := c.initializeObservability(); err != nil {
		return err
	}

	if err := c.initializeDockerClient(ctx, opts); err != nil {
		_ = c.metricsManager.Close()
		return err
	}

	c.collector = snapshot.NewCollector(c.dockerClient, cfg.Concurrency, c.telemetryManager)
	c.apiServer = api.NewServer(cfg.ListenAddr, c.dockerClient, c.metricsManager, c.telemetryManager)

	c.initialized = true
	c.telemetryManager.LogApplicationInfo()

	return nil
}

// initializeObservability initializes telemetry and metrics
func (c *Container) initializeObservability() error {
	c.telemetryManager = observability.NewTelemetryManager(
		c.config.TelemetryEnabled,
		ServiceName,
		c.version,
		c.config.Profile,
	)

	c.metricsManager = observability.NewMetricsManager(c.config.MetricsEnabled, ServiceName)

	// A separate metrics address gets its own listener; otherwise /metrics
	// is mounted on the API server.
	if c.config.MetricsEnabled && c.config.MetricsAddr != "" {
		if err := c.metricsManager.StartServer(c.config.MetricsAddr); err != nil {
			return errors.NewSystemError("di", "failed to start metrics server", err)
		}
	}

	return nil
}

// initializeDockerClient connects to the daemon socket
func (c *Container) initializeDockerClient(ctx context.Context, opts []docker.ClientOption) error {
	opts = append([]docker.ClientOption{
		docker.WithMetrics(c.metricsManager),
		docker.WithTelemetry(c.telemetryManager),
	}, opts...)

	client, err := docker.NewClient(ctx, c.config.ClientConfig(), opts...)
	if err != nil {
		return err
	}

	c.dockerClient = client
	return nil
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.config
}

// GetDockerClient returns the Docker client
func (c *Container) GetDockerClient() docker.ClientInterface {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.dockerClient
}

// GetCollector returns the snapshot collector
func (c *Container) GetCollector() *snapshot.Collector {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.collector
}

// GetAPIServer returns the HTTP route layer
func (c *Container) GetAPIServer() *api.Server {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.apiServer
}

// GetTelemetryManager returns the telemetry manager
func (c *Container) GetTelemetryManager() *observability.TelemetryManager {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.telemetryManager
}

// GetMetricsManager returns the metrics manager
func (c *Container) GetMetricsManager() *observability.MetricsManager {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.metricsManager
}

// Cleanup releases all resources held by the container
func (c *Container) Cleanup() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var errs []error

	if c.metricsManager != nil {
		if err := c.metricsManager.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.dockerClient != nil {
		if err := c.dockerClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	c.dockerClient = nil
	c.collector = nil
	c.apiServer = nil
	c.telemetryManager = nil
	c.metricsManager = nil
	c.initialized = false

	if len(errs) > 0 {
		return errors.NewSystemError("di", "failed to cleanup container", errs[0])
	}

	return nil
}
