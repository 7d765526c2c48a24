package observability

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	correlationIDKey  contextKey = "correlation_id"
	operationNameKey  contextKey = "operation_name"
	operationStartKey contextKey = "operation_start"
)

// TelemetryManager logs operation lifecycles and dependency calls. A nil or
// disabled manager is a no-op.
type TelemetryManager struct {
	enabled        bool
	serviceName    string
	serviceVersion string
	environment    string
	hostInfo       *HostInfo
	startTime      time.Time
	mutex          sync.Mutex
	correlationIDs map[string]string
}

// HostInfo contains information about the host environment
type HostInfo struct {
	Hostname     string
	OS           string
	Architecture string
	CPUCount     int
	GoVersion    string
}

// NewTelemetryManager creates a new telemetry manager
func NewTelemetryManager(enabled bool, serviceName, serviceVersion, environment string) *TelemetryManager {
	return &TelemetryManager{
		enabled:        enabled,
		serviceName:    serviceName,
		serviceVersion: serviceVersion,
		environment:    environment,
		hostInfo:       getHostInfo(),
		startTime:      time.Now(),
		correlationIDs: make(map[string]string),
	}
}

func getHostInfo() *HostInfo {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &HostInfo{
		Hostname:     hostname,
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		CPUCount:     runtime.NumCPU(),
		GoVersion:    runtime.Version(),
	}
}

func (t *TelemetryManager) active() bool {
	return t != nil && t.enabled
}

// Start records the start of an operation
func (t *TelemetryManager) Start(ctx context.Context, operationName string) context.Context {
	if !t.active() {
		return ctx
	}

	correlationID := t.CorrelationID(operationName)

	ctx = context.WithValue(ctx, correlationIDKey, correlationID)
	ctx = context.WithValue(ctx, operationNameKey, operationName)
	ctx = context.WithValue(ctx, operationStartKey, time.Now())

	log.Debug().
		Str("correlation_id", correlationID).
		Str("operation", operationName).
		Str("service", t.serviceName).
		Str("version", t.serviceVersion).
		Msg("Operation started")

	return ctx
}

// End records the end of an operation
func (t *TelemetryManager) End(ctx context.Context, err error) {
	if !t.active() {
		return
	}

	correlationID, _ := ctx.Value(correlationIDKey).(string)
	operationName, _ := ctx.Value(operationNameKey).(string)
	startTime, _ := ctx.Value(operationStartKey).(time.Time)

	duration := time.Since(startTime)

	if err != nil {
		log.Error().
			Str("correlation_id", correlationID).
			Str("operation", operationName).
			Dur("duration_ms", duration).
			Err(err).
			Msg("Operation failed")
	} else {
		log.Debug().
			Str("correlation_id", correlationID).
			Str("operation", operationName).
			Dur("duration_ms", duration).
			Msg("Operation completed successfully")
	}
}

// RecordDependency records a call to an external dependency such as the daemon
func (t *TelemetryManager) RecordDependency(ctx context.Context, dependencyType, dependencyName string, startTime time.Time, success bool, err error) {
	if !t.active() {
		return
	}

	correlationID, _ := ctx.Value(correlationIDKey).(string)
	operationName, _ := ctx.Value(operationNameKey).(string)
	duration := time.Since(startTime)

	if success {
		log.Debug().
			Str("dependency_type", dependencyType).
			Str("dependency_name", dependencyName).
			Str("correlation_id", correlationID).
			Str("operation", operationName).
			Dur("duration_ms", duration).
			Bool("success", success).
			Msg("Dependency call completed")
	} else {
		log.Error().
			Str("dependency_type", dependencyType).
			Str("dependency_name", dependencyName).
			Str("correlation_id", correlationID).
			Str("operation", operationName).
			Dur("duration_ms", duration).
			Bool("success", success).
			Err(err).
			Msg("Dependency call failed")
	}
}

// CorrelationID returns the correlation id for an operation, creating one on first use
func (t *TelemetryManager) CorrelationID(operationName string) string {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if id, exists := t.correlationIDs[operationName]; exists {
		return id
	}

	id := fmt.Sprintf("%s-%d", operationName, time.Now().UnixNano())
	t.correlationIDs[operationName] = id
	return id
}

// CorrelationIDFrom extracts the correlation id stored by Start
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// GetUptime returns the application uptime
func (t *TelemetryManager) GetUptime() time.Duration {
	return time.Since(t.startTime)
}

// LogApplicationInfo logs information about the application at startup
func (t *TelemetryManager) LogApplicationInfo() {
	if !t.active() {
		return
	}

	log.Info().
		Str("service", t.serviceName).
		Str("version", t.serviceVersion).
		Str("environment", t.environment).
		Str("hostname", t.hostInfo.Hostname).
		Str("os", t.hostInfo.OS).
		Str("arch", t.hostInfo.Architecture).
		Int("cpu_count", t.hostInfo.CPUCount).
		Str("go_version", t.hostInfo.GoVersion).
		Msg("Application started")
}
