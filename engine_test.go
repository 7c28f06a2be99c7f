package notisync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/notisync/credential"
	"github.com/arloliu/notisync/source"
	notitest "github.com/arloliu/notisync/testing"
)

const testToken = "s3cret"

type engineFixture struct {
	engine *Engine
	api    *source.Static
	creds  *credential.Static
	ns     *server.Server
	nc     *nats.Conn
	base   uint32 // server subscriptions not owned by the engine

	alerts atomic.Int32

	mu       sync.Mutex
	statuses []ConnStatus
	shakes   []bool
}

func (f *engineFixture) connStates() []ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]ConnState, len(f.statuses))
	for i, s := range f.statuses {
		out[i] = s.State
	}

	return out
}

func (f *engineFixture) shakeFlips() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]bool(nil), f.shakes...)
}

func (f *engineFixture) publish(t *testing.T, subject, payload string) {
	t.Helper()

	require.NoError(t, f.nc.Publish(subject, []byte(payload)))
	require.NoError(t, f.nc.Flush())
}

// waitSubscribed waits until the engine holds n subscriptions on the server.
func (f *engineFixture) waitSubscribed(t *testing.T, n uint32) {
	t.Helper()

	require.Eventually(t, func() bool { return f.ns.NumSubscriptions() == f.base+n }, 2*time.Second, 10*time.Millisecond)
}

func unreadItems(n int) []json.RawMessage {
	items := make([]json.RawMessage, n)
	for i := range n {
		items[i] = json.RawMessage(fmt.Sprintf(
			`{"id":"%d","title":"item %d","createdAt":"2026-03-01T%02d:00:00Z","status":"UNREAD"}`, i+1, i+1, i))
	}

	return items
}

func newEngineFixture(t *testing.T, items []json.RawMessage, subject string) *engineFixture {
	t.Helper()

	ns, nc := notitest.StartEmbeddedNATS(t, notitest.WithAuthToken(testToken))

	f := &engineFixture{
		api:   source.NewStatic(items),
		creds: credential.NewStatic(subject, testToken),
		ns:    ns,
		nc:    nc,
		base:  ns.NumSubscriptions(),
	}

	cfg := TestConfig()
	cfg.BrokerURL = ns.ClientURL()

	engine, err := NewEngine(cfg, f.api, f.creds, WithLogger(notitest.NewTestLogger(t)))
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	f.engine = engine

	engine.OnAlertTriggered(func(Alert) { f.alerts.Add(1) })
	engine.OnConnectivityChanged(func(s ConnStatus) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.statuses = append(f.statuses, s)
	})
	engine.OnShakingChanged(func(v bool) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.shakes = append(f.shakes, v)
	})

	return f
}

// openAndSettle opens the engine, waits for the first snapshot of want items
// and for the settle delay to pass.
func (f *engineFixture) openAndSettle(t *testing.T, want int) {
	t.Helper()

	require.NoError(t, f.engine.Open(t.Context()))
	require.Eventually(t, func() bool { return len(f.engine.CurrentMergedView()) == want }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(3 * f.engine.cfg.SettleDelay)
}

func TestNewEngine_Validation(t *testing.T) {
	cfg := TestConfig()
	cfg.BrokerURL = "nats://127.0.0.1:4222"
	api := source.NewStatic(nil)
	creds := credential.NewStatic("", "")

	_, err := NewEngine(cfg, nil, creds)
	require.ErrorIs(t, err, ErrAPIRequired)

	_, err = NewEngine(cfg, api, nil)
	require.ErrorIs(t, err, ErrCredentialsRequired)

	_, err = NewEngine(TestConfig(), api, creds)
	require.ErrorIs(t, err, ErrInvalidConfig)

	engine, err := NewEngine(cfg, api, creds)
	require.NoError(t, err)
	require.NotEmpty(t, engine.ID())
	require.False(t, engine.IsOpen())
	require.Empty(t, engine.CurrentMergedView())
	require.Empty(t, engine.BadgeText())
}

func TestEngine_ClosedOperations(t *testing.T) {
	cfg := TestConfig()
	cfg.BrokerURL = "nats://127.0.0.1:4222"
	engine, err := NewEngine(cfg, source.NewStatic(nil), credential.NewStatic("1", testToken))
	require.NoError(t, err)

	require.ErrorIs(t, engine.AcknowledgeRead(t.Context(), "1"), ErrEngineClosed)
	require.ErrorIs(t, engine.AcknowledgeAllRead(t.Context()), ErrEngineClosed)
	require.ErrorIs(t, engine.Refresh(t.Context()), ErrEngineClosed)
	require.ErrorIs(t, engine.Reconnect(t.Context()), ErrEngineClosed)
	require.False(t, engine.Send("noti.read", nil, nil))

	// Close before Open is fine.
	engine.Close()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.ErrorIs(t, engine.Open(ctx), context.Canceled)
	require.False(t, engine.IsOpen())
}

func TestEngine_AlertSuppressedOnLoad(t *testing.T) {
	f := newEngineFixture(t, unreadItems(10), "42")
	f.openAndSettle(t, 10)

	require.Equal(t, 10, f.engine.CurrentUnreadCount())
	require.Equal(t, "10", f.engine.BadgeText())
	require.Zero(t, f.alerts.Load())
	require.False(t, f.engine.Shaking())

	view := f.engine.CurrentMergedView()
	require.Equal(t, "10", view[0].ID, "newest first")
	require.Equal(t, "1", view[9].ID)
}

func TestEngine_AlertFiresOncePerNewArrival(t *testing.T) {
	f := newEngineFixture(t, unreadItems(3), "42")
	f.openAndSettle(t, 3)
	f.waitSubscribed(t, 2)

	push := `{"id":"100","title":"new","createdAt":"2026-03-02T00:00:00Z"}`
	f.publish(t, "user.noti.42", push)

	require.Eventually(t, func() bool { return f.alerts.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 4, f.engine.CurrentUnreadCount())
	require.Equal(t, "100", f.engine.CurrentMergedView()[0].ID)

	// The shaking flag clears on its own.
	require.Eventually(t, func() bool { return !f.engine.Shaking() }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		flips := f.shakeFlips()
		return len(flips) == 2 && flips[0] && !flips[1]
	}, time.Second, 5*time.Millisecond)

	// Same notification again: deduplicated, no second alert.
	f.publish(t, "user.noti.42", push)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, int32(1), f.alerts.Load())
	require.Equal(t, 4, f.engine.CurrentUnreadCount())
	require.Len(t, f.engine.CurrentMergedView(), 4)

	// A genuinely new broadcast alerts again.
	f.publish(t, "topic.noti", `{"id":"101","title":"global"}`)
	require.Eventually(t, func() bool { return f.alerts.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_PollIncreaseDoesNotAlert(t *testing.T) {
	f := newEngineFixture(t, unreadItems(2), "42")
	f.openAndSettle(t, 2)

	f.api.Update(unreadItems(5))
	require.NoError(t, f.engine.Refresh(t.Context()))

	require.Equal(t, 5, f.engine.CurrentUnreadCount())
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, f.alerts.Load())
}

func TestEngine_PushDuringSettleDoesNotAlert(t *testing.T) {
	f := newEngineFixture(t, unreadItems(1), "42")
	f.engine.cfg.SettleDelay = time.Second

	require.NoError(t, f.engine.Open(t.Context()))
	require.Eventually(t, func() bool { return f.engine.CurrentUnreadCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	f.waitSubscribed(t, 2)

	f.publish(t, "user.noti.42", `{"id":"200"}`)
	require.Eventually(t, func() bool { return f.engine.CurrentUnreadCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Zero(t, f.alerts.Load())
}

func TestEngine_AcknowledgeReadNoResurrection(t *testing.T) {
	f := newEngineFixture(t, unreadItems(3), "42")
	f.openAndSettle(t, 3)
	f.waitSubscribed(t, 2)

	require.NoError(t, f.engine.AcknowledgeRead(t.Context(), "2"))
	require.Equal(t, 2, f.engine.CurrentUnreadCount())
	require.Equal(t, []string{"2"}, f.api.ReadIDs())

	// A stale push with no read flag must not bring it back.
	f.publish(t, "user.noti.42", `{"id":"2","title":"item 2"}`)
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 2, f.engine.CurrentUnreadCount())
	require.Zero(t, f.alerts.Load())

	for _, n := range f.engine.CurrentMergedView() {
		if n.ID == "2" {
			require.True(t, n.Read())
			require.Equal(t, StatusRead, n.Status)
		}
	}

	// Unknown notifications are still forwarded; the backend rejects them.
	require.ErrorIs(t, f.engine.AcknowledgeRead(t.Context(), "999"), ErrAcknowledgeFailed)
	require.Equal(t, 2, f.engine.CurrentUnreadCount())
}

func TestEngine_AcknowledgeAllRead(t *testing.T) {
	f := newEngineFixture(t, unreadItems(4), "42")
	f.openAndSettle(t, 4)

	var (
		mu    sync.Mutex
		lasts []int
	)
	f.engine.OnMergedViewChanged(func(_ []Notification, unread int) {
		mu.Lock()
		defer mu.Unlock()
		lasts = append(lasts, unread)
	})

	require.NoError(t, f.engine.AcknowledgeAllRead(t.Context()))
	require.Zero(t, f.engine.CurrentUnreadCount())
	require.Empty(t, f.engine.BadgeText())
	require.Equal(t, 1, f.api.ReadAllCalls())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(lasts) > 0 && lasts[len(lasts)-1] == 0
	}, time.Second, 5*time.Millisecond)

	// The next poll agrees with the optimistic state.
	require.NoError(t, f.engine.Refresh(t.Context()))
	require.Zero(t, f.engine.CurrentUnreadCount())
}

func TestEngine_ListenerMayCallBack(t *testing.T) {
	f := newEngineFixture(t, unreadItems(1), "42")

	f.engine.OnAlertTriggered(func(Alert) {
		// Runs on the listener goroutine; must not deadlock.
		_ = f.engine.AcknowledgeAllRead(context.Background())
	})

	f.openAndSettle(t, 1)
	f.waitSubscribed(t, 2)

	f.publish(t, "topic.noti", `{"id":"300"}`)
	require.Eventually(t, func() bool {
		return f.alerts.Load() == 1 && f.engine.CurrentUnreadCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_RawFrameIsDelivered(t *testing.T) {
	f := newEngineFixture(t, nil, "42")
	f.openAndSettle(t, 0)
	f.waitSubscribed(t, 2)

	f.publish(t, "topic.noti", "maintenance tonight")

	require.Eventually(t, func() bool { return f.engine.CurrentUnreadCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	view := f.engine.CurrentMergedView()
	require.Equal(t, "maintenance tonight", view[0].Message)
	require.NotEmpty(t, view[0].Key)
}

func TestEngine_NoSubjectSubscribesBroadcastOnly(t *testing.T) {
	f := newEngineFixture(t, nil, "")
	require.NoError(t, f.engine.Open(t.Context()))

	require.Empty(t, f.engine.PersonalDestination())
	f.waitSubscribed(t, 1)

	// After login the next connect picks up the personal topic.
	f.creds.Set("a.b", testToken)
	require.Equal(t, "user.noti.a_b", f.engine.PersonalDestination())
	require.NoError(t, f.engine.Reconnect(t.Context()))
	f.waitSubscribed(t, 2)
}

func TestEngine_LoginAfterOpenConnects(t *testing.T) {
	f := newEngineFixture(t, unreadItems(2), "")
	f.creds.Set("", "")

	require.NoError(t, f.engine.Open(t.Context()))
	require.Eventually(t, func() bool { return len(f.engine.CurrentMergedView()) == 2 }, 2*time.Second, 10*time.Millisecond)
	require.NotEqual(t, ConnConnected, f.engine.Status().State)
	require.Zero(t, f.engine.Status().Attempts)

	// No Connect or Reconnect call: the engine notices the login on its own.
	f.creds.Set("7", testToken)
	require.Eventually(t, func() bool { return f.engine.Status().State == ConnConnected }, 3*time.Second, 10*time.Millisecond)
	require.Equal(t, "user.noti.7", f.engine.PersonalDestination())
	f.waitSubscribed(t, 2)

	f.publish(t, "user.noti.7", `{"id":"9","title":"after login","createdAt":"2026-03-01T09:00:00Z","status":"UNREAD"}`)
	require.Eventually(t, func() bool { return len(f.engine.CurrentMergedView()) == 3 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "9", f.engine.CurrentMergedView()[0].ID)
	require.Equal(t, 3, f.engine.CurrentUnreadCount())
}

func TestEngine_ConnectivityListener(t *testing.T) {
	f := newEngineFixture(t, nil, "42")
	require.NoError(t, f.engine.Open(t.Context()))

	require.Eventually(t, func() bool {
		for _, s := range f.connStates() {
			if s == ConnConnected {
				return true
			}
		}

		return false
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, ConnConnected, f.engine.Status().State)

	require.True(t, f.engine.Send("noti.ping", []byte(`{}`), nil))
}

func TestEngine_CloseCancelsEverything(t *testing.T) {
	f := newEngineFixture(t, unreadItems(2), "42")

	var views atomic.Int32
	dispose := f.engine.OnMergedViewChanged(func([]Notification, int) { views.Add(1) })

	require.NoError(t, f.engine.Open(t.Context()))
	require.NoError(t, f.engine.Open(t.Context()), "second Open is a no-op")
	require.Eventually(t, func() bool { return views.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
	f.waitSubscribed(t, 2)

	// Close inside the settle window.
	f.engine.Close()
	f.engine.Close()
	require.False(t, f.engine.IsOpen())
	f.waitSubscribed(t, 0)

	seen := views.Load()
	f.publish(t, "topic.noti", `{"id":"400"}`)
	time.Sleep(3 * f.engine.cfg.SettleDelay)

	require.Equal(t, seen, views.Load())
	require.Zero(t, f.alerts.Load())
	require.Equal(t, ConnDisconnected, f.engine.Status().State)
	require.ErrorIs(t, f.engine.Refresh(t.Context()), ErrEngineClosed)

	// Reopen starts a fresh session.
	dispose()
	require.NoError(t, f.engine.Open(t.Context()))
	require.Eventually(t, func() bool { return len(f.engine.CurrentMergedView()) == 2 }, 2*time.Second, 10*time.Millisecond)
	f.waitSubscribed(t, 2)
	require.Equal(t, seen, views.Load(), "disposed listener stays silent")
}

func TestSubjectToken(t *testing.T) {
	require.Equal(t, "42", subjectToken("42"))
	require.Equal(t, "a_b_c", subjectToken("a.b c"))
	require.Equal(t, "__", subjectToken("*>"))
}
