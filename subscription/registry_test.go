package subscription

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	notitest "github.com/arloliu/notisync/testing"
	"github.com/arloliu/notisync/transport"
)

const testToken = "s3cret"

type staticToken string

func (s staticToken) AuthToken() string { return string(s) }

// recordingTransport records successful subscribe calls in order.
type recordingTransport struct {
	*transport.Client

	mu    sync.Mutex
	calls []string
}

func (r *recordingTransport) Subscribe(destination string, h transport.Handler, headers map[string]string) (*transport.Subscription, error) {
	sub, err := r.Client.Subscribe(destination, h, headers)
	if err == nil {
		r.mu.Lock()
		r.calls = append(r.calls, destination)
		r.mu.Unlock()
	}

	return sub, err
}

func (r *recordingTransport) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.calls...)
}

func (r *recordingTransport) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

type countingMetrics struct {
	mu      sync.Mutex
	results map[string]int
	tracked int
}

func (m *countingMetrics) RecordSubscribe(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = make(map[string]int)
	}
	m.results[result]++
}

func (m *countingMetrics) SetTrackedSubscriptions(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked = count
}

func (m *countingMetrics) count(result string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.results[result]
}

func newClient(t *testing.T, url string) *recordingTransport {
	t.Helper()

	c, err := transport.New(transport.Config{
		URL:                  url,
		ReconnectDelay:       50 * time.Millisecond,
		MaxReconnectAttempts: 100,
		Logger:               notitest.NewTestLogger(t),
	}, staticToken(testToken))
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)

	return &recordingTransport{Client: c}
}

func newRegistry(t *testing.T, tr Transport, cfg Config) *Registry {
	t.Helper()

	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 10 * time.Millisecond
	}
	cfg.Logger = notitest.NewTestLogger(t)
	r := NewRegistry(tr, cfg)
	t.Cleanup(r.Close)

	return r
}

func counter(n *atomic.Int32) transport.Handler {
	return func(transport.Frame) { n.Add(1) }
}

func TestRegistry_IdempotentSubscribe(t *testing.T) {
	ns, nc := notitest.StartEmbeddedNATS(t, notitest.WithAuthToken(testToken))
	tr := newClient(t, ns.ClientURL())
	require.NoError(t, tr.Connect(t.Context()))

	reg := newRegistry(t, tr, Config{})

	var hits atomic.Int32
	require.NoError(t, reg.EnsureSubscribed("topic.noti", counter(&hits), nil))
	require.NoError(t, reg.EnsureSubscribed("topic.noti", counter(&hits), nil))

	require.Equal(t, []string{"topic.noti"}, tr.Calls())
	require.Equal(t, []string{"topic.noti"}, reg.destinations())

	require.NoError(t, nc.Publish("topic.noti", []byte(`{"id":"1"}`)))
	require.NoError(t, nc.Flush())

	require.Eventually(t, func() bool { return hits.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), hits.Load())
}

func TestRegistry_DefersUntilConnected(t *testing.T) {
	ns, nc := notitest.StartEmbeddedNATS(t, notitest.WithAuthToken(testToken))
	tr := newClient(t, ns.ClientURL())
	mc := &countingMetrics{}
	reg := newRegistry(t, tr, Config{MaxAttempts: 1000, Metrics: mc})

	var hits atomic.Int32
	require.NoError(t, reg.EnsureSubscribed("user.noti.42", counter(&hits), nil))
	require.False(t, reg.Alive("user.noti.42"))
	require.Equal(t, 1, mc.count(resultDeferred))

	require.NoError(t, tr.Connect(t.Context()))
	require.Eventually(t, func() bool { return reg.Alive("user.noti.42") }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, nc.Publish("user.noti.42", []byte(`{}`)))
	require.Eventually(t, func() bool { return hits.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Exactly one subscription was created, by either path.
	require.Equal(t, []string{"user.noti.42"}, tr.Calls())
}

func TestRegistry_ResubscribesInRegistrationOrder(t *testing.T) {
	srv := notitest.NewRestartableNATS(t, notitest.WithAuthToken(testToken))
	tr := newClient(t, srv.URL())
	require.NoError(t, tr.Connect(t.Context()))

	reg := newRegistry(t, tr, Config{MaxAttempts: 1000})

	dests := []string{"user.noti.7", "topic.noti", "app.echo"}
	hits := make([]atomic.Int32, len(dests))
	for i, d := range dests {
		require.NoError(t, reg.EnsureSubscribed(d, counter(&hits[i]), nil))
	}
	require.Equal(t, dests, tr.Calls())

	tr.Reset()
	srv.Stop()
	require.Eventually(t, func() bool { return !reg.Alive("topic.noti") }, 2*time.Second, 10*time.Millisecond)

	srv.Restart()
	require.Eventually(t, func() bool {
		for _, d := range dests {
			if !reg.Alive(d) {
				return false
			}
		}

		return true
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, dests, tr.Calls())

	nc, err := nats.Connect(srv.URL(), nats.Token(testToken))
	require.NoError(t, err)
	defer nc.Close()

	for _, d := range dests {
		require.NoError(t, nc.Publish(d, []byte(`{}`)))
	}
	require.NoError(t, nc.Flush())

	require.Eventually(t, func() bool {
		for i := range hits {
			if hits[i].Load() != 1 {
				return false
			}
		}

		return true
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	for i := range hits {
		require.Equal(t, int32(1), hits[i].Load(), "destination %s", dests[i])
	}
}

func TestRegistry_Release(t *testing.T) {
	ns, nc := notitest.StartEmbeddedNATS(t, notitest.WithAuthToken(testToken))
	tr := newClient(t, ns.ClientURL())
	require.NoError(t, tr.Connect(t.Context()))

	reg := newRegistry(t, tr, Config{})

	// Unknown destination is fine.
	reg.Release("nothing")

	var hits atomic.Int32
	require.NoError(t, reg.EnsureSubscribed("topic.noti", counter(&hits), nil))
	reg.Release("topic.noti")
	reg.Release("topic.noti")

	require.Empty(t, reg.destinations())
	require.False(t, reg.Alive("topic.noti"))

	require.NoError(t, nc.Publish("topic.noti", []byte(`{}`)))
	require.NoError(t, nc.Flush())
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, hits.Load())

	// Re-registering after release moves the destination to the end.
	require.NoError(t, reg.EnsureSubscribed("a", counter(&hits), nil))
	require.NoError(t, reg.EnsureSubscribed("topic.noti", counter(&hits), nil))
	require.Equal(t, []string{"a", "topic.noti"}, reg.destinations())
}

func TestRegistry_CloseCancelsPendingRetries(t *testing.T) {
	ns, _ := notitest.StartEmbeddedNATS(t, notitest.WithAuthToken(testToken))
	tr := newClient(t, ns.ClientURL())

	reg := NewRegistry(tr, Config{RetryInterval: 10 * time.Millisecond, MaxAttempts: 1000})
	require.NoError(t, reg.EnsureSubscribed("topic.noti", func(transport.Frame) {}, nil))

	done := make(chan struct{})
	go func() {
		reg.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	require.ErrorIs(t, reg.EnsureSubscribed("topic.noti", func(transport.Frame) {}, nil), ErrRegistryClosed)

	// A later connect must not resurrect anything.
	require.NoError(t, tr.Connect(t.Context()))
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, tr.Calls())

	reg.Close()
}

func TestRegistry_GivesUpAfterMaxAttempts(t *testing.T) {
	ns, _ := notitest.StartEmbeddedNATS(t, notitest.WithAuthToken(testToken))
	tr := newClient(t, ns.ClientURL())
	mc := &countingMetrics{}

	reg := newRegistry(t, tr, Config{MaxAttempts: 3, Metrics: mc})
	require.NoError(t, reg.EnsureSubscribed("topic.noti", func(transport.Frame) {}, nil))

	require.Eventually(t, func() bool { return mc.count(resultGaveUp) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []string{"topic.noti"}, reg.destinations())

	// The intent is kept: the next connect re-subscribes it.
	require.NoError(t, tr.Connect(t.Context()))
	require.Eventually(t, func() bool { return reg.Alive("topic.noti") }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, mc.count(resultResubscribed))
}

func TestRegistry_JitteredRetry(t *testing.T) {
	ns, _ := notitest.StartEmbeddedNATS(t, notitest.WithAuthToken(testToken))
	tr := newClient(t, ns.ClientURL())

	reg := newRegistry(t, tr, Config{MaxAttempts: 1000, RetryJitter: true, RetrySeed: 7})
	require.NoError(t, reg.EnsureSubscribed("topic.noti", func(transport.Frame) {}, nil))

	require.NoError(t, tr.Connect(t.Context()))
	require.Eventually(t, func() bool { return reg.Alive("topic.noti") }, 2*time.Second, 10*time.Millisecond)
}

func TestRegistry_RetryDelays(t *testing.T) {
	const base = 10 * time.Millisecond

	t.Run("fixed interval without jitter", func(t *testing.T) {
		reg := NewRegistry(newClient(t, "nats://127.0.0.1:1"), Config{RetryInterval: base})
		t.Cleanup(reg.Close)

		var delay time.Duration
		for range 10 {
			delay = reg.nextDelay(delay)
			require.Equal(t, base, delay)
		}
	})

	t.Run("jitter grows within bounds", func(t *testing.T) {
		reg := NewRegistry(newClient(t, "nats://127.0.0.1:1"), Config{RetryInterval: base, RetryJitter: true, RetrySeed: 42})
		t.Cleanup(reg.Close)

		delay := reg.nextDelay(0)
		require.Equal(t, base, delay)

		var grew bool
		for range 200 {
			next := reg.nextDelay(delay)
			require.GreaterOrEqual(t, next, base)
			require.LessOrEqual(t, next, base*maxBackoffFactor)
			require.LessOrEqual(t, next, max(2*delay, base))
			if next > base {
				grew = true
			}
			delay = next
		}
		require.True(t, grew)
	})

	t.Run("same seed same sequence", func(t *testing.T) {
		a := NewRegistry(newClient(t, "nats://127.0.0.1:1"), Config{RetryInterval: base, RetryJitter: true, RetrySeed: 9})
		b := NewRegistry(newClient(t, "nats://127.0.0.1:1"), Config{RetryInterval: base, RetryJitter: true, RetrySeed: 9})
		t.Cleanup(a.Close)
		t.Cleanup(b.Close)

		var da, db time.Duration
		for range 20 {
			da, db = a.nextDelay(da), b.nextDelay(db)
			require.Equal(t, da, db)
		}
	})

	t.Run("deferred retries honour the delay", func(t *testing.T) {
		mc := &countingMetrics{}
		reg := NewRegistry(newClient(t, "nats://127.0.0.1:1"), Config{RetryInterval: 40 * time.Millisecond, MaxAttempts: 3, Metrics: mc})
		t.Cleanup(reg.Close)

		start := time.Now()
		require.NoError(t, reg.EnsureSubscribed("topic.noti", func(transport.Frame) {}, nil))
		require.Eventually(t, func() bool { return mc.count(resultGaveUp) == 1 }, 2*time.Second, 5*time.Millisecond)
		require.GreaterOrEqual(t, time.Since(start), 3*40*time.Millisecond)
	})
}
