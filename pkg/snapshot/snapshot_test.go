package snapshot

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/system"
	"github.com/docker/docker/api/types/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yugasun/teus/pkg/docker"
	"github.com/yugasun/teus/pkg/errors"
	"github.com/yugasun/teus/test/mocks"
)

func populatedClient() *mocks.MockDockerClient {
	m := mocks.NewMockDockerClient()
	m.VersionResult = types.Version{Version: "27.0.3", APIVersion: "1.46", Os: "linux", Arch: "amd64"}
	m.InfoResult = system.Info{Name: "buildhost", Containers: 2, ContainersRunning: 1, ContainersStopped: 1, Images: 1}
	m.Containers = []container.Summary{
		{ID: "0123456789abcdef0123", Names: []string{"/web"}, Image: "nginx:latest", State: "running"},
		{ID: "fedcba9876543210fedc", Names: []string{"/db"}, Image: "postgres:16", State: "exited"},
	}
	m.Images = []image.Summary{{ID: "sha256:aaaabbbbccccdddd", RepoTags: []string{"nginx:latest"}, Size: 1024}}
	m.Volumes = volume.ListResponse{Volumes: []*volume.Volume{{Name: "pgdata", Driver: "local"}}}
	m.Networks = []network.Summary{{Name: "bridge", Driver: "bridge", Scope: "local"}}
	return m
}

func TestCollect(t *testing.T) {
	m := populatedClient()

	snap, err := NewCollector(m, 2, nil).Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "27.0.3", snap.Version.Version)
	assert.Equal(t, "buildhost", snap.Info.Name)
	assert.Len(t, snap.Containers, 2)
	assert.Len(t, snap.Images, 1)
	assert.Len(t, snap.Volumes, 1)
	assert.Len(t, snap.Networks, 1)

	require.Len(t, snap.Sections, len(sectionOrder))
	for i, name := range sectionOrder {
		assert.Equal(t, name, snap.Sections[i].Name)
	}
	assert.Equal(t, 2, snap.Sections[2].Count)

	assert.Contains(t, m.Recorded(), "container_list all=true")
	for _, op := range []docker.Operation{docker.OpVersion, docker.OpInfo, docker.OpImageList, docker.OpVolumeList, docker.OpNetworkList} {
		assert.Equal(t, 1, m.CallCount(op), op.String())
	}
}

func TestCollectFailure(t *testing.T) {
	m := populatedClient()
	m.Errors[docker.OpVolumeList] = errors.NewTransportError("docker", "read", nil)

	_, err := NewCollector(m, 1, nil).Collect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransportError(err))
	assert.Contains(t, err.Error(), "collect volumes")
}

func TestCollectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCollector(populatedClient(), 1, nil).Collect(ctx)
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	snap, err := NewCollector(populatedClient(), 4, nil).Collect(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, snap.Render(&buf))
	out := buf.String()

	assert.Contains(t, out, "Engine 27.0.3 (API 1.46) linux/amd64")
	assert.Contains(t, out, "Host buildhost: 1 running, 1 stopped, 1 images")
	assert.Contains(t, out, "0123456789ab  /web  nginx:latest  running")
	assert.Contains(t, out, "aaaabbbbcccc  nginx:latest  1024")
	assert.Contains(t, out, "pgdata  local")
	assert.Contains(t, out, "bridge  bridge  local")
}

func TestRenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Snapshot{}).Render(&buf))
	assert.Contains(t, buf.String(), "Containers:\n  (none)")
}

func TestWriteReport(t *testing.T) {
	snap, err := NewCollector(populatedClient(), 1, nil).Collect(context.Background())
	require.NoError(t, err)

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "snapshot.txt")
		var buf bytes.Buffer
		require.NoError(t, WriteReport(snap, path, &buf))
		assert.Zero(t, buf.Len())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "Docker snapshot taken")
	})

	t.Run("Writer", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteReport(snap, "", &buf))
		assert.Contains(t, buf.String(), "Docker snapshot taken")
	})

	t.Run("Bad path", func(t *testing.T) {
		err := WriteReport(snap, filepath.Join(t.TempDir(), "missing", "x.txt"), &bytes.Buffer{})
		assert.True(t, errors.IsSystemError(err))
	})

	t.Run("Close failure", func(t *testing.T) {
		f := &failingCloser{}
		orig := createFile
		createFile = func(string) (io.WriteCloser, error) { return f, nil }
		defer func() { createFile = orig }()

		err := WriteReport(snap, "snapshot.txt", &bytes.Buffer{})
		require.Error(t, err)
		assert.True(t, errors.IsSystemError(err))
		assert.ErrorIs(t, err, os.ErrClosed)
		assert.Contains(t, f.String(), "Docker snapshot taken")
	})
}

// failingCloser accepts writes but fails to close, like a file whose final
// flush is rejected
type failingCloser struct {
	bytes.Buffer
}

func (f *failingCloser) Close() error {
	return os.ErrClosed
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123456789ab", shortID("sha256:0123456789abcdef"))
	assert.Equal(t, "abc", shortID("abc"))
}
