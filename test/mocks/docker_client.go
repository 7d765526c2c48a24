package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/system"
	"github.com/docker/docker/api/types/volume"

	"github.com/yugasun/teus/pkg/docker"
	"github.com/yugasun/teus/pkg/errors"
)

// MockDockerClient provides a mock implementation for testing daemon queries
type MockDockerClient struct {
	mu sync.Mutex

	VersionResult types.Version
	InfoResult    system.Info
	PingResult    string
	Containers    []container.Summary
	Inspected     map[string]container.InspectResponse
	Volumes       volume.ListResponse
	Images        []image.Summary
	Networks      []network.Summary

	// Errors holds a failure to return per operation, e.g. docker.OpInfo
	Errors map[docker.Operation]error

	// Calls records each operation together with its query or parameter
	Calls  []string
	Closed bool
}

// Ensure MockDockerClient implements ClientInterface
var _ docker.ClientInterface = (*MockDockerClient)(nil)

// NewMockDockerClient creates a new instance of MockDockerClient
func NewMockDockerClient() *MockDockerClient {
	return &MockDockerClient{
		PingResult: "OK",
		Inspected:  make(map[string]container.InspectResponse),
		Errors:     make(map[docker.Operation]error),
	}
}

func (m *MockDockerClient) record(op docker.Operation, arg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := op.String()
	if arg != "" {
		call += " " + arg
	}
	m.Calls = append(m.Calls, call)
	return m.Errors[op]
}

// Recorded returns a copy of the calls made so far
func (m *MockDockerClient) Recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

// CallCount returns how many times op was invoked
func (m *MockDockerClient) CallCount(op docker.Operation) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, call := range m.Calls {
		if call == op.String() || strings.HasPrefix(call, op.String()+" ") {
			n++
		}
	}
	return n
}

// Version mocks GET /version
func (m *MockDockerClient) Version(ctx context.Context) (types.Version, error) {
	if err := m.record(docker.OpVersion, ""); err != nil {
		return types.Version{}, err
	}
	return m.VersionResult, nil
}

// Info mocks GET /info
func (m *MockDockerClient) Info(ctx context.Context) (system.Info, error) {
	if err := m.record(docker.OpInfo, ""); err != nil {
		return system.Info{}, err
	}
	return m.InfoResult, nil
}

// Ping mocks GET /_ping
func (m *MockDockerClient) Ping(ctx context.Context) (string, error) {
	if err := m.record(docker.OpPing, ""); err != nil {
		return "", err
	}
	return m.PingResult, nil
}

// ContainerList mocks GET /containers/json
func (m *MockDockerClient) ContainerList(ctx context.Context, query string) ([]container.Summary, error) {
	if err := m.record(docker.OpContainerList, query); err != nil {
		return nil, err
	}
	return m.Containers, nil
}

// ContainerInspect mocks GET /containers/{id}/json; unknown ids are NotFound
func (m *MockDockerClient) ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error) {
	if err := m.record(docker.OpContainerInspect, id); err != nil {
		return container.InspectResponse{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	resp, ok := m.Inspected[id]
	if !ok {
		return container.InspectResponse{}, errors.NewNotFoundError("docker", id, "No such container: "+id)
	}
	return resp, nil
}

// VolumeList mocks GET /volumes
func (m *MockDockerClient) VolumeList(ctx context.Context, query string) (volume.ListResponse, error) {
	if err := m.record(docker.OpVolumeList, query); err != nil {
		return volume.ListResponse{}, err
	}
	return m.Volumes, nil
}

// VolumeInspect mocks GET /volumes/{name}, looking the name up in Volumes
func (m *MockDockerClient) VolumeInspect(ctx context.Context, name string) (volume.Volume, error) {
	if err := m.record(docker.OpVolumeInspect, name); err != nil {
		return volume.Volume{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.Volumes.Volumes {
		if v != nil && v.Name == name {
			return *v, nil
		}
	}
	return volume.Volume{}, errors.NewNotFoundError("docker", name, "get "+name+": no such volume")
}

// ImageList mocks GET /images/json
func (m *MockDockerClient) ImageList(ctx context.Context, query string) ([]image.Summary, error) {
	if err := m.record(docker.OpImageList, query); err != nil {
		return nil, err
	}
	return m.Images, nil
}

// NetworkList mocks GET /networks
func (m *MockDockerClient) NetworkList(ctx context.Context, query string) ([]network.Summary, error) {
	if err := m.record(docker.OpNetworkList, query); err != nil {
		return nil, err
	}
	return m.Networks, nil
}

// Close marks the client closed
func (m *MockDockerClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}
