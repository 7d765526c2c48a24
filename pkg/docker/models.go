package docker

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/docker/docker/api/types/filters"
	dockerclient "github.com/docker/docker/client"
)

// ClientConfig holds configuration for a socket client
type ClientConfig struct {
	SocketPath  string
	Host        string
	DialTimeout time.Duration
	IOTimeout   time.Duration
	Serialize   bool
}

// DefaultSocketPath is the daemon socket used when nothing else is configured
var DefaultSocketPath = strings.TrimPrefix(dockerclient.DefaultDockerHost, "unix://")

// DefaultClientConfig returns a default configuration for socket clients
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		SocketPath:  DefaultSocketPath,
		Host:        "localhost",
		DialTimeout: 5 * time.Second,
		IOTimeout:   30 * time.Second,
	}
}

// ListQuery builds the pre-encoded query string accepted by list operations
type ListQuery struct {
	All     bool
	Filters filters.Args
}

// Encode renders the query, e.g. "all=true&filters=%7B...%7D". An empty query
// encodes to "".
func (q ListQuery) Encode() (string, error) {
	values := url.Values{}
	if q.All {
		values.Set("all", "true")
	}
	if q.Filters.Len() > 0 {
		encoded, err := filters.ToJSON(q.Filters)
		if err != nil {
			return "", err
		}
		values.Set("filters", encoded)
	}
	return values.Encode(), nil
}

// ParseFilters turns "key=value" pairs into filter arguments
func ParseFilters(pairs []string) (filters.Args, error) {
	args := filters.NewArgs()
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.ToLower(strings.TrimSpace(key))
		if !ok || key == "" {
			return filters.NewArgs(), fmt.Errorf("bad filter %q: expected key=value", pair)
		}
		args.Add(key, strings.TrimSpace(value))
	}
	return args, nil
}

// daemonError is the body the Engine returns alongside a failing status
type daemonError struct {
	Message string `json:"message"`
}
