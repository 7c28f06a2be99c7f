package testing

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// ServerOption customizes an embedded NATS server.
type ServerOption func(*server.Options)

// WithAuthToken requires clients to present the given token.
func WithAuthToken(token string) ServerOption {
	return func(o *server.Options) {
		o.Authorization = token
	}
}

// WithPort binds the server to a fixed port instead of a random one.
func WithPort(port int) ServerOption {
	return func(o *server.Options) {
		o.Port = port
	}
}

func serverOptions(opts ...ServerOption) *server.Options {
	o := &server.Options{
		Host:   "127.0.0.1",
		Port:   -1, // Use random available port
		NoLog:  true,
		NoSigs: true,
	}
	for _, opt := range opts {
		opt(o)
	}

	return o
}

func startServer(t *testing.T, o *server.Options) *server.Server {
	t.Helper()

	ns, err := server.NewServer(o)
	if err != nil {
		t.Fatalf("Failed to create embedded NATS server: %v", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("Embedded NATS server not ready within timeout")
	}

	return ns
}

// StartEmbeddedNATS starts an in-process NATS server for testing.
//
// The server uses a random available port so parallel tests never collide, and
// is shut down automatically via t.Cleanup().
//
// Parameters:
//   - t: Testing context for logging and cleanup
//   - opts: Server options such as WithAuthToken
//
// Returns:
//   - *server.Server: The embedded NATS server instance
//   - *nats.Conn: Connected client for publishing test frames (closed automatically)
//
// Example:
//
//	func TestPush(t *testing.T) {
//	    ns, nc := notitest.StartEmbeddedNATS(t, notitest.WithAuthToken("s3cret"))
//	    _ = nc.Publish("topic.noti", []byte(`{"id":"1"}`))
//	}
func StartEmbeddedNATS(t *testing.T, opts ...ServerOption) (*server.Server, *nats.Conn) {
	t.Helper()

	o := serverOptions(opts...)
	ns := startServer(t, o)

	connectOpts := []nats.Option{nats.Timeout(2 * time.Second)}
	if o.Authorization != "" {
		connectOpts = append(connectOpts, nats.Token(o.Authorization))
	}

	nc, err := nats.Connect(ns.ClientURL(), connectOpts...)
	if err != nil {
		ns.Shutdown()
		t.Fatalf("Failed to connect to embedded NATS server: %v", err)
	}

	// Register cleanup handlers (executed in reverse order)
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})

	return ns, nc
}

// RestartableNATS is an embedded server bound to a fixed port so clients can
// reconnect to the same URL after Restart.
type RestartableNATS struct {
	t    *testing.T
	opts *server.Options

	mu sync.Mutex
	ns *server.Server
}

// NewRestartableNATS starts a server on a free port and registers cleanup.
func NewRestartableNATS(t *testing.T, opts ...ServerOption) *RestartableNATS {
	t.Helper()

	o := serverOptions(opts...)
	if o.Port == -1 {
		o.Port = FreePort(t)
	}

	r := &RestartableNATS{t: t, opts: o}
	r.ns = startServer(t, r.cloneOptions())

	t.Cleanup(r.Stop)

	return r
}

// URL returns the client URL, stable across restarts.
func (r *RestartableNATS) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.ns.ClientURL()
}

// Server returns the currently running server instance.
func (r *RestartableNATS) Server() *server.Server {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.ns
}

// Stop shuts the server down. Safe to call repeatedly.
func (r *RestartableNATS) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ns == nil || !r.ns.Running() {
		return
	}
	r.ns.Shutdown()
	r.ns.WaitForShutdown()
}

// Restart stops the server if running and starts a fresh one on the same port.
func (r *RestartableNATS) Restart() {
	r.t.Helper()
	r.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.ns = startServer(r.t, r.cloneOptions())
}

// cloneOptions returns a copy; the server mutates the options it is given.
func (r *RestartableNATS) cloneOptions() *server.Options {
	o := *r.opts
	return &o
}

// FreePort returns a TCP port that was free at the time of the call.
func FreePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to allocate port: %v", err)
	}
	defer l.Close()

	return l.Addr().(*net.TCPAddr).Port
}
