package transport

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/notisync/internal/natsutil"
	"github.com/arloliu/notisync/types"
)

// TokenSource supplies the auth token attached to each connection attempt.
// types.CredentialProvider satisfies it.
type TokenSource interface {
	AuthToken() string
}

// Client is a NATS connection with a bounded, fixed-delay reconnect policy.
//
// All methods are safe for concurrent use. Errors never escape as panics; they
// are returned or reflected in Status.
type Client struct {
	cfg    Config
	tokens TokenSource
	logger types.Logger
	mc     types.TransportMetrics
	name   string

	mu         sync.Mutex
	conn       *nats.Conn
	state      types.ConnState
	attempts   int
	lost       bool
	lastErr    error
	dialing    bool // an attempt of the current gen is in flight
	noToken    bool // waiting for a token to appear
	ready      chan struct{} // closed while CONNECTED
	gen        uint64        // bumped by Disconnect to invalidate in-flight work
	retryTimer *time.Timer
	genCtx     context.Context //nolint:containedctx // cancels retries of one connect sequence
	genCancel  context.CancelFunc

	subs      *xsync.Map[uint64, *Subscription]
	nextSubID atomic.Uint64

	connectedListeners *xsync.Map[uint64, func()]
	statusListeners    *xsync.Map[uint64, func(types.ConnStatus)]
	nextListenerID     atomic.Uint64
}

// New creates a disconnected client.
//
// Parameters:
//   - cfg: Client configuration (URL required)
//   - tokens: Source of the auth token, consulted on every attempt
//
// Returns:
//   - *Client: Client in ConnDisconnected
//   - error: ErrInvalidConfig when cfg is unusable
func New(cfg Config, tokens TokenSource) (*Client, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, fmt.Errorf("%w: token source is required", ErrInvalidConfig)
	}

	return &Client{
		cfg:                cfg,
		tokens:             tokens,
		logger:             cfg.Logger,
		mc:                 cfg.Metrics,
		name:               cfg.Name + "-" + uuid.NewString(),
		ready:              make(chan struct{}),
		subs:               xsync.NewMap[uint64, *Subscription](),
		connectedListeners: xsync.NewMap[uint64, func()](),
		statusListeners:    xsync.NewMap[uint64, func(types.ConnStatus)](),
	}, nil
}

// Connect starts a connection sequence and waits for its first attempt.
//
// It is a no-op when already connected, connecting, or waiting on a scheduled
// retry. After the retry budget was exhausted, Connect starts a fresh sequence.
// A failed first attempt schedules retries in the background; the returned
// error only describes that first attempt. Without a token the client polls
// the token source every ReconnectDelay and dials once one appears; those
// checks do not count against MaxReconnectAttempts.
//
// Parameters:
//   - ctx: Bounds the first dial
//
// Returns:
//   - error: ErrNoCredentials when no token is available (logged, recoverable),
//     or the wrapped dial error
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == types.ConnConnected || c.dialing || c.retryTimer != nil {
		c.mu.Unlock()
		return nil
	}

	if c.lost {
		c.lost = false
		c.attempts = 0
	}
	if c.genCancel == nil {
		c.genCtx, c.genCancel = context.WithCancel(context.Background())
	}
	gen := c.gen
	c.mu.Unlock()

	return c.attempt(ctx, gen)
}

// Reconnect tears everything down and starts over with a fresh attempt budget.
func (c *Client) Reconnect(ctx context.Context) error {
	c.Disconnect()

	return c.Connect(ctx)
}

// Disconnect unsubscribes everything (best effort) and closes the connection.
// Pending retries are cancelled. Always safe to call.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	if c.genCancel != nil {
		c.genCancel()
		c.genCtx, c.genCancel = nil, nil
	}
	nc := c.conn
	c.conn = nil
	c.attempts = 0
	c.lost = false
	c.lastErr = nil
	c.dialing = false
	c.noToken = false
	c.resetReadyLocked()
	changed := c.setStateLocked(types.ConnDisconnected)
	status := c.statusLocked()
	c.mu.Unlock()

	c.unsubscribeAll()

	if nc != nil {
		nc.Close()
		c.logger.Info("transport disconnected", "url", c.cfg.URL)
	}

	if changed {
		c.emitStatus(status)
	}
}

// Subscribe registers handler for frames on destination.
//
// The subscription is effective locally as soon as this returns; there is no
// broker acknowledgement. Passing headers[QueueHeader] joins a queue group.
//
// Returns:
//   - *Subscription: Handle for unsubscribing
//   - error: types.ErrNotConnected when not CONNECTED, or the wrapped NATS error
func (c *Client) Subscribe(destination string, handler Handler, headers map[string]string) (*Subscription, error) {
	c.mu.Lock()
	nc := c.conn
	gen := c.gen
	connected := c.state == types.ConnConnected
	c.mu.Unlock()

	if !connected || nc == nil {
		return nil, types.ErrNotConnected
	}

	s := &Subscription{
		id:          c.nextSubID.Add(1),
		destination: destination,
		client:      c,
		conn:        nc,
		gen:         gen,
	}

	cb := func(msg *nats.Msg) {
		f := newFrame(msg)
		c.mc.RecordFrame(f.Kind())
		handler(f)
	}

	var (
		sub *nats.Subscription
		err error
	)
	if queue := headers[QueueHeader]; queue != "" {
		sub, err = nc.QueueSubscribe(destination, queue, cb)
	} else {
		sub, err = nc.Subscribe(destination, cb)
	}
	if err != nil {
		if natsutil.IsConnectivityError(err) {
			err = errors.Join(types.ErrNotConnected, err)
		}

		return nil, fmt.Errorf("failed to subscribe to %s: %w", destination, err)
	}

	s.sub = sub
	c.subs.Store(s.id, s)
	c.logger.Debug("subscribed", "destination", destination, "subscription_id", s.id)

	return s, nil
}

// Send publishes body to destination, prefixing the app namespace when missing.
//
// Returns:
//   - bool: true if the message was handed to the connection
func (c *Client) Send(destination string, body []byte, headers map[string]string) bool {
	c.mu.Lock()
	nc := c.conn
	connected := c.state == types.ConnConnected
	c.mu.Unlock()

	if !connected || nc == nil {
		c.mc.RecordSend(false)
		c.logger.Debug("send skipped, not connected", "destination", destination)

		return false
	}

	msg := nats.NewMsg(c.qualify(destination))
	msg.Data = body
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	if msg.Header.Get(CorrelationHeader) == "" {
		msg.Header.Set(CorrelationHeader, uuid.NewString())
	}

	if err := nc.PublishMsg(msg); err != nil {
		c.mc.RecordSend(false)
		c.logger.Warn("send failed", "destination", msg.Subject, "error", err)

		return false
	}

	c.mc.RecordSend(true)

	return true
}

// Status returns the current connection status.
func (c *Client) Status() types.ConnStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.statusLocked()
}

// Ready returns a channel that is closed while the client is CONNECTED.
//
// A new channel is handed out after every connection loss, so callers should
// fetch it again each time they wait.
func (c *Client) Ready() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ready
}

// OnConnected registers fn to run after every successful connect. Listeners
// run in registration order.
//
// Returns:
//   - func(): Removes the listener
func (c *Client) OnConnected(fn func()) func() {
	id := c.nextListenerID.Add(1)
	c.connectedListeners.Store(id, fn)

	return func() { c.connectedListeners.Delete(id) }
}

// OnStatus registers fn to run on every state change.
//
// Returns:
//   - func(): Removes the listener
func (c *Client) OnStatus(fn func(types.ConnStatus)) func() {
	id := c.nextListenerID.Add(1)
	c.statusListeners.Store(id, fn)

	return func() { c.statusListeners.Delete(id) }
}

// attempt performs one dial for connection generation gen.
//
// At most one attempt per generation runs at a time; a caller that finds one
// in flight returns nil.
func (c *Client) attempt(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	if gen != c.gen || c.state == types.ConnConnected || c.dialing {
		c.mu.Unlock()
		return nil
	}
	c.dialing = true
	c.retryTimer = nil
	c.mu.Unlock()

	// Token sources may block on a keyring, so never call them under c.mu.
	token := c.tokens.AuthToken()

	c.mu.Lock()
	if gen != c.gen {
		// Disconnect ran meanwhile and already cleared dialing.
		c.mu.Unlock()
		return nil
	}

	if token == "" {
		c.dialing = false
		first := !c.noToken
		c.noToken = true
		changed := c.setStateLocked(types.ConnDisconnected)
		c.scheduleTokenCheckLocked(gen)
		status := c.statusLocked()
		c.mu.Unlock()

		if first {
			c.logger.Warn("no auth token available, waiting for login", "url", c.cfg.URL, "check_every", c.cfg.ReconnectDelay)
		}
		if changed {
			c.emitStatus(status)
		}

		return types.ErrNoCredentials
	}

	c.noToken = false
	c.attempts++
	attempt := c.attempts
	c.setStateLocked(types.ConnConnecting)
	status := c.statusLocked()
	c.mu.Unlock()

	c.emitStatus(status)

	nc, err := nats.Connect(c.cfg.URL, c.natsOptions(ctx, token)...)

	c.mu.Lock()
	if gen != c.gen {
		// Disconnect ran while dialing.
		c.mu.Unlock()
		if nc != nil {
			nc.Close()
		}

		return nil
	}
	c.dialing = false

	if err != nil {
		c.lastErr = err
		c.setStateLocked(types.ConnError)
		retry := c.scheduleRetryLocked(gen)
		status = c.statusLocked()
		c.mu.Unlock()

		c.logFailure("connect attempt failed", attempt, retry, err)
		c.emitStatus(status)

		return fmt.Errorf("connect attempt %d: %w", attempt, err)
	}

	if c.state == types.ConnConnected {
		c.mu.Unlock()
		nc.Close()

		return nil
	}

	c.conn = nc
	c.attempts = 0
	c.lost = false
	c.lastErr = nil
	c.setStateLocked(types.ConnConnected)
	close(c.ready)
	status = c.statusLocked()
	c.mu.Unlock()

	c.logger.Info("transport connected", "url", c.cfg.URL, "attempt", attempt)
	c.emitStatus(status)
	c.runConnectedListeners()

	return nil
}

// handleConnLost runs when an established connection drops.
func (c *Client) handleConnLost(nc *nats.Conn, err error) {
	c.mu.Lock()
	if c.conn != nc {
		// Stale connection or one we closed ourselves.
		c.mu.Unlock()
		return
	}

	c.conn = nil
	gen := c.gen
	if err == nil {
		err = nats.ErrConnectionClosed
	}
	c.lastErr = err
	c.resetReadyLocked()
	c.setStateLocked(types.ConnError)
	retry := c.scheduleRetryLocked(gen)
	status := c.statusLocked()
	c.mu.Unlock()

	// Subscriptions do not survive a fresh connection.
	c.subs.Range(func(id uint64, s *Subscription) bool {
		if s.gen == gen && s.conn == nc {
			c.subs.Delete(id)
		}

		return true
	})

	c.logFailure("connection lost", 0, retry, err)
	c.emitStatus(status)
}

// scheduleRetryLocked arms the retry timer or marks the connection lost.
// Must hold c.mu.
func (c *Client) scheduleRetryLocked(gen uint64) bool {
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.lost = true
		return false
	}

	ctx := c.genCtx
	c.retryTimer = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.mc.IncrementReconnectAttempt()
		_ = c.attempt(ctx, gen)
	})

	return true
}

// scheduleTokenCheckLocked re-runs attempt after ReconnectDelay while no
// token is available. Must hold c.mu.
func (c *Client) scheduleTokenCheckLocked(gen uint64) {
	ctx := c.genCtx
	c.retryTimer = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		_ = c.attempt(ctx, gen)
	})
}

func (c *Client) natsOptions(ctx context.Context, token string) []nats.Option {
	if ctx == nil {
		ctx = context.Background()
	}

	return []nats.Option{
		nats.Name(c.name),
		nats.Token(token),
		nats.Timeout(c.cfg.ConnectTimeout),
		nats.NoReconnect(),
		nats.SetCustomDialer(&ctxDialer{ctx: ctx, timeout: c.cfg.ConnectTimeout}),
		nats.DisconnectErrHandler(c.handleConnLost),
		nats.ClosedHandler(func(nc *nats.Conn) { c.handleConnLost(nc, nc.LastError()) }),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			c.logger.Warn("async broker error", "destination", subject, "kind", natsutil.Classify(err), "error", err)
		}),
	}
}

func (c *Client) logFailure(msg string, attempt int, retry bool, err error) {
	kv := []any{"url", c.cfg.URL, "kind", natsutil.Classify(err), "error", err}
	if attempt > 0 {
		kv = append(kv, "attempt", attempt, "max_attempts", c.cfg.MaxReconnectAttempts)
	}

	if retry {
		c.logger.Warn(msg+", retrying", append(kv, "delay", c.cfg.ReconnectDelay)...)
		return
	}

	c.logger.Error(msg+", giving up until reconnect", append(kv, "reason", types.ErrRetryExhausted)...)
}

// qualify prefixes the app namespace unless destination already carries it.
func (c *Client) qualify(destination string) string {
	ns := c.cfg.AppNamespace
	destination = strings.TrimPrefix(destination, ".")
	if destination == ns || strings.HasPrefix(destination, ns+".") {
		return destination
	}

	return ns + "." + destination
}

// setStateLocked transitions state and records the metric. Must hold c.mu.
func (c *Client) setStateLocked(to types.ConnState) bool {
	from := c.state
	if from == to {
		return false
	}
	c.state = to
	c.mc.RecordConnectionState(from, to)

	return true
}

// resetReadyLocked hands out a fresh, open ready channel. Must hold c.mu.
func (c *Client) resetReadyLocked() {
	select {
	case <-c.ready:
		c.ready = make(chan struct{})
	default:
	}
}

func (c *Client) statusLocked() types.ConnStatus {
	return types.ConnStatus{
		State:    c.state,
		Attempts: c.attempts,
		Lost:     c.lost,
		Err:      c.lastErr,
	}
}

func (c *Client) emitStatus(status types.ConnStatus) {
	c.statusListeners.Range(func(_ uint64, fn func(types.ConnStatus)) bool {
		fn(status)
		return true
	})
}

// runConnectedListeners calls the connected listeners in registration order.
func (c *Client) runConnectedListeners() {
	type listener struct {
		id uint64
		fn func()
	}

	var ls []listener
	c.connectedListeners.Range(func(id uint64, fn func()) bool {
		ls = append(ls, listener{id: id, fn: fn})
		return true
	})
	slices.SortFunc(ls, func(a, b listener) int { return cmp.Compare(a.id, b.id) })

	for _, l := range ls {
		l.fn()
	}
}

func (c *Client) unsubscribeAll() {
	c.subs.Range(func(_ uint64, s *Subscription) bool {
		if err := s.Unsubscribe(); err != nil {
			c.logger.Debug("unsubscribe during disconnect failed", "destination", s.destination, "error", err)
		}

		return true
	})
}

// ctxDialer lets an in-flight dial be abandoned when its context ends.
type ctxDialer struct {
	ctx     context.Context //nolint:containedctx // scoped to one dial
	timeout time.Duration
}

func (d *ctxDialer) Dial(network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.timeout}
	return dialer.DialContext(d.ctx, network, address)
}
