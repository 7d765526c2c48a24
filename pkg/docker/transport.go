package docker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/yugasun/teus/pkg/errors"
)

// Transport sends one formatted request and returns the raw response bytes
type Transport interface {
	RoundTrip(ctx context.Context, request []byte) ([]byte, error)
}

// TransportOption configures a UnixTransport
type TransportOption func(*UnixTransport)

// WithDialTimeout bounds how long connecting to the socket may take
func WithDialTimeout(d time.Duration) TransportOption {
	return func(t *UnixTransport) { t.dialTimeout = d }
}

// WithIOTimeout bounds the whole write/read exchange of a single call
func WithIOTimeout(d time.Duration) TransportOption {
	return func(t *UnixTransport) { t.ioTimeout = d }
}

// Serialize forces calls on the transport to run one at a time
func Serialize() TransportOption {
	return func(t *UnixTransport) { t.serial = &sync.Mutex{} }
}

// UnixTransport talks HTTP/1.1 over a Unix domain socket. Every call dials a
// fresh connection because requests carry Connection: close.
type UnixTransport struct {
	socketPath  string
	dialTimeout time.Duration
	ioTimeout   time.Duration
	serial      *sync.Mutex
}

// Ensure UnixTransport implements Transport
var _ Transport = (*UnixTransport)(nil)

// NewUnixTransport checks that socketPath accepts connections and returns a
// transport bound to it.
func NewUnixTransport(ctx context.Context, socketPath string, opts ...TransportOption) (*UnixTransport, error) {
	t := &UnixTransport{
		socketPath:  socketPath,
		dialTimeout: 5 * time.Second,
		ioTimeout:   30 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}

	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	_ = conn.Close()

	return t, nil
}

// SocketPath returns the filesystem path of the daemon socket
func (t *UnixTransport) SocketPath() string {
	return t.socketPath
}

func (t *UnixTransport) dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: t.dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", t.socketPath)
	if err != nil {
		return nil, errors.NewConnectionError("docker", "cannot connect to "+t.socketPath, err).
			WithDetail("socket", t.socketPath)
	}
	return conn, nil
}

// RoundTrip writes request, flushes it and reads until the daemon closes the
// connection. An empty response is reported as a read failure.
func (t *UnixTransport) RoundTrip(ctx context.Context, request []byte) ([]byte, error) {
	if t.serial != nil {
		t.serial.Lock()
		defer t.serial.Unlock()
	}

	conn, err := t.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(t.deadline(ctx)); err != nil {
		return nil, errors.NewTransportError("docker", "deadline", err)
	}

	// Unblock pending I/O when ctx is cancelled before the deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	w := bufio.NewWriter(conn)
	if _, err := w.Write(request); err != nil {
		return nil, errors.NewTransportError("docker", "write", t.cause(ctx, err))
	}
	if err := w.Flush(); err != nil {
		return nil, errors.NewTransportError("docker", "flush", t.cause(ctx, err))
	}

	raw, err := io.ReadAll(conn)
	if err != nil {
		return nil, errors.NewTransportError("docker", "read", t.cause(ctx, err))
	}
	if len(raw) == 0 {
		return nil, errors.NewTransportError("docker", "read", io.ErrUnexpectedEOF)
	}

	return raw, nil
}

func (t *UnixTransport) deadline(ctx context.Context) time.Time {
	var deadline time.Time
	if t.ioTimeout > 0 {
		deadline = time.Now().Add(t.ioTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

// cause puts the context error in front when a deadline was forced by
// cancellation, keeping the socket error alongside it.
func (t *UnixTransport) cause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}
