package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/system"
	"github.com/docker/docker/api/types/volume"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/yugasun/teus/pkg/docker"
	"github.com/yugasun/teus/pkg/errors"
	"github.com/yugasun/teus/pkg/observability"
)

// Section names, in report order
const (
	SectionVersion    = "version"
	SectionInfo       = "info"
	SectionContainers = "containers"
	SectionImages     = "images"
	SectionVolumes    = "volumes"
	SectionNetworks   = "networks"
)

var sectionOrder = []string{
	SectionVersion, SectionInfo, SectionContainers, SectionImages, SectionVolumes, SectionNetworks,
}

// Section describes how one part of the snapshot was collected
type Section struct {
	Name     string
	Count    int
	Duration time.Duration
}

// Snapshot is a point-in-time view of a daemon
type Snapshot struct {
	Taken      time.Time
	Version    types.Version
	Info       system.Info
	Containers []container.Summary
	Images     []image.Summary
	Volumes    []*volume.Volume
	Networks   []network.Summary
	Sections   []Section
}

// Collector gathers snapshots with bounded concurrency
type Collector struct {
	client      docker.ClientInterface
	concurrency int
	telemetry   *observability.TelemetryManager
}

// NewCollector creates a collector issuing at most concurrency daemon
// requests at a time. telemetry may be nil.
func NewCollector(client docker.ClientInterface, concurrency int, telemetry *observability.TelemetryManager) *Collector {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Collector{
		client:      client,
		concurrency: concurrency,
		telemetry:   telemetry,
	}
}

// Collect queries every section. The first failure cancels the rest and is
// returned wrapped with the section name.
func (c *Collector) Collect(ctx context.Context) (snap *Snapshot, err error) {
	ctx = c.telemetry.Start(ctx, "snapshot")
	defer func() { c.telemetry.End(ctx, err) }()

	snap = &Snapshot{Taken: time.Now().UTC()}
	tasks := map[string]func(context.Context) (int, error){
		SectionVersion: func(ctx context.Context) (int, error) {
			v, err := c.client.Version(ctx)
			snap.Version = v
			return 1, err
		},
		SectionInfo: func(ctx context.Context) (int, error) {
			info, err := c.client.Info(ctx)
			snap.Info = info
			return 1, err
		},
		SectionContainers: func(ctx context.Context) (int, error) {
			list, err := c.client.ContainerList(ctx, "all=true")
			snap.Containers = list
			return len(list), err
		},
		SectionImages: func(ctx context.Context) (int, error) {
			list, err := c.client.ImageList(ctx, "")
			snap.Images = list
			return len(list), err
		},
		SectionVolumes: func(ctx context.Context) (int, error) {
			resp, err := c.client.VolumeList(ctx, "")
			snap.Volumes = resp.Volumes
			return len(resp.Volumes), err
		},
		SectionNetworks: func(ctx context.Context) (int, error) {
			list, err := c.client.NetworkList(ctx, "")
			snap.Networks = list
			return len(list), err
		},
	}

	sem := semaphore.NewWeighted(int64(c.concurrency))
	g, gctx := errgroup.WithContext(ctx)

	var mutex sync.Mutex
	sections := make(map[string]Section, len(tasks))

	for _, name := range sectionOrder {
		task := tasks[name]
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return fmt.Errorf("failed to acquire semaphore: %w", err)
			}
			defer sem.Release(1)

			start := time.Now()
			count, err := task(gctx)
			if err != nil {
				log.Error().Err(err).Str("section", name).Msg("Failed to collect snapshot section")
				return fmt.Errorf("collect %s: %w", name, err)
			}

			mutex.Lock()
			sections[name] = Section{Name: name, Count: count, Duration: time.Since(start)}
			mutex.Unlock()

			log.Debug().Str("section", name).Int("count", count).Msg("Snapshot section collected")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, name := range sectionOrder {
		snap.Sections = append(snap.Sections, sections[name])
	}

	log.Info().
		Int("containers", len(snap.Containers)).
		Int("images", len(snap.Images)).
		Int("volumes", len(snap.Volumes)).
		Int("networks", len(snap.Networks)).
		Msg("Snapshot collected")

	return snap, nil
}

const reportTemplate = `Docker snapshot taken {{ .Taken.Format "2006-01-02T15:04:05Z07:00" }}
Engine {{ .Version.Version }} (API {{ .Version.APIVersion }}) {{ .Version.Os }}/{{ .Version.Arch }}
Host {{ .Info.Name }}: {{ .Info.ContainersRunning }} running, {{ .Info.ContainersStopped }} stopped, {{ .Info.Images }} images

Sections:
{{ range .Sections }}  {{ printf "%-11s" .Name }} {{ printf "%5d" .Count }}  {{ .Duration }}
{{ end }}
Containers:
{{ range .Containers }}  {{ shortID .ID }}  {{ join .Names ", " }}  {{ .Image }}  {{ .State }}
{{ else }}  (none)
{{ end }}
Images:
{{ range .Images }}  {{ shortID .ID }}  {{ join .RepoTags ", " }}  {{ .Size }}
{{ else }}  (none)
{{ end }}
Volumes:
{{ range .Volumes }}  {{ .Name }}  {{ .Driver }}
{{ else }}  (none)
{{ end }}
Networks:
{{ range .Networks }}  {{ .Name }}  {{ .Driver }}  {{ .Scope }}
{{ else }}  (none)
{{ end -}}
`

var report = template.Must(template.New("snapshot").Funcs(template.FuncMap{
	"shortID": shortID,
	"join":    strings.Join,
}).Parse(reportTemplate))

// shortID strips the digest algorithm and keeps the first 12 hex digits
func shortID(id string) string {
	if _, digest, ok := strings.Cut(id, ":"); ok {
		id = digest
	}
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// Render writes the plain-text report for s to w
func (s *Snapshot) Render(w io.Writer) error {
	if err := report.Execute(w, s); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

// createFile opens report files; replaced in tests
var createFile = func(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// WriteReport renders s to path, or to w when path is empty
func WriteReport(s *Snapshot, path string, w io.Writer) (err error) {
	if path == "" {
		return s.Render(w)
	}

	outputFile, err := createFile(path)
	if err != nil {
		return errors.NewSystemError("snapshot", "failed to create output file", err).WithDetail("path", path)
	}
	defer func() {
		if closeErr := outputFile.Close(); closeErr != nil && err == nil {
			err = errors.NewSystemError("snapshot", "failed to close output file", closeErr).WithDetail("path", path)
		}
	}()

	if err := s.Render(outputFile); err != nil {
		return err
	}

	log.Info().Str("path", path).Msg("Snapshot report written")
	return nil
}
