package notisync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arloliu/notisync/detector"
	"github.com/arloliu/notisync/internal/logging"
	"github.com/arloliu/notisync/internal/metrics"
	"github.com/arloliu/notisync/internal/poller"
	"github.com/arloliu/notisync/merge"
	"github.com/arloliu/notisync/subscription"
	"github.com/arloliu/notisync/transport"
	"github.com/arloliu/notisync/types"
)

// Engine keeps a merged, deduplicated notification view in sync with a polled
// REST snapshot and a live NATS push stream, and decides when a new arrival
// deserves an alert.
//
// State changes run one at a time on an internal event loop. Listeners are
// called in order on a separate goroutine, so they may call back into the
// engine (acknowledge, refresh, read the view) without deadlocking. The one
// exception is Close, which must not be called from a listener.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	cfg     Config
	api     NotificationAPI
	creds   CredentialProvider
	logger  Logger
	metrics MetricsCollector
	id      string

	client  *transport.Client
	decoder *merge.Decoder
	shaker  *detector.Shaker

	// Owned by the event loop of the current session.
	merger   *merge.Merger
	detector *detector.Detector

	mu      sync.Mutex // serializes Open and Close
	session atomic.Pointer[session]
	view    atomic.Pointer[viewState]

	viewListeners  *xsync.Map[uint64, func([]Notification, int)]
	alertListeners *xsync.Map[uint64, func(Alert)]
	connListeners  *xsync.Map[uint64, func(ConnStatus)]
	shakeListeners *xsync.Map[uint64, func(bool)]
	nextListenerID atomic.Uint64
}

// viewState is an immutable published view.
type viewState struct {
	items  []Notification
	unread int
}

// session holds everything that lives between one Open and the matching Close.
type session struct {
	ctx    context.Context //nolint:containedctx // session lifetime
	cancel context.CancelFunc
	events *eventQueue // state changes
	notify *eventQueue // listener dispatch
	wg     sync.WaitGroup

	registry *subscription.Registry
	poller   *poller.Poller
	unhooks  []func()

	// loop only
	polled bool
	settle *time.Timer

	subMu    sync.Mutex
	personal string
}

// NewEngine creates a closed engine.
//
// Parameters:
//   - cfg: Engine configuration; unset fields get defaults
//   - api: REST collaborator for snapshots and read acknowledgements
//   - creds: Credential collaborator for the subject ID and broker token
//   - opts: Optional logger and metrics
//
// Returns:
//   - *Engine: Engine ready to Open
//   - error: ErrInvalidConfig, ErrAPIRequired or ErrCredentialsRequired
//
// Example:
//
//	cfg := notisync.DefaultConfig()
//	cfg.BrokerURL = "nats://127.0.0.1:4222"
//	engine, err := notisync.NewEngine(cfg, api, creds, notisync.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	engine.OnAlertTriggered(func(a notisync.Alert) { playChime(a.Chime) })
//	if err := engine.Open(ctx); err != nil {
//	    return err
//	}
//	defer engine.Close()
func NewEngine(cfg Config, api NotificationAPI, creds CredentialProvider, opts ...Option) (*Engine, error) {
	if api == nil {
		return nil, ErrAPIRequired
	}
	if creds == nil {
		return nil, ErrCredentialsRequired
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &engineOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = logging.NewNop()
	}
	if options.metrics == nil {
		options.metrics = metrics.NewNop()
	}

	cfg.ValidateWithWarnings(options.logger)

	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	client, err := transport.New(transport.Config{
		URL:                  cfg.BrokerURL,
		ConnectTimeout:       cfg.ConnectTimeout,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		AppNamespace:         cfg.Destinations.AppNamespace,
		Name:                 cfg.ConnectionName,
		Logger:               options.logger,
		Metrics:              options.metrics,
	}, creds)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	e := &Engine{
		cfg:            cfg,
		api:            api,
		creds:          creds,
		logger:         options.logger,
		metrics:        options.metrics,
		id:             uuid.NewString(),
		client:         client,
		decoder:        merge.NewDecoder(loc, cfg.IdentityBucket),
		merger:         merge.NewMerger(cfg.PushBufferSize),
		detector:       detector.New(cfg.ShakeDuration),
		viewListeners:  xsync.NewMap[uint64, func([]Notification, int)](),
		alertListeners: xsync.NewMap[uint64, func(Alert)](),
		connListeners:  xsync.NewMap[uint64, func(ConnStatus)](),
		shakeListeners: xsync.NewMap[uint64, func(bool)](),
	}
	e.shaker = detector.NewShaker(e.onShake)
	e.view.Store(&viewState{})

	return e, nil
}

// ID returns the engine instance ID used in logs.
func (e *Engine) ID() string {
	return e.id
}

// Open connects to the broker, subscribes the personal and broadcast topics
// and starts polling. The first poll runs immediately.
//
// Connectivity problems never fail Open: they are retried in the background
// and reported through OnConnectivityChanged. A missing credential is logged
// and resolves on the next successful connect. Calling Open on an open engine
// is a no-op. Every Open starts a fresh session: the merged view is empty and
// alerts stay suppressed until the settle delay after the first poll.
//
// Parameters:
//   - ctx: Bounds the first broker dial only
//
// Returns:
//   - error: The context error when ctx is already done, nil otherwise
func (e *Engine) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Load() != nil {
		return nil
	}

	e.merger.Reset()
	e.detector.Reset()
	e.view.Store(&viewState{})

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		ctx:    sctx,
		cancel: cancel,
		events: newEventQueue(),
		notify: newEventQueue(),
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.events.run(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.notify.run(s.ctx)
	}()

	s.registry = subscription.NewRegistry(e.client, subscription.Config{
		RetryInterval: e.cfg.SubscribeRetryInterval,
		MaxAttempts:   e.cfg.MaxSubscribeAttempts,
		RetryJitter:   e.cfg.SubscribeRetryJitter,
		Logger:        e.logger,
		Metrics:       e.metrics,
	})
	s.poller = poller.New(func(ctx context.Context) error {
		return e.poll(ctx, s)
	}, e.cfg.PollInterval, e.cfg.PollTimeout)
	s.poller.SetLogger(e.logger)
	s.poller.SetMetrics(e.metrics)

	// Registered after the registry, so connected listeners see the restored
	// subscriptions before the personal topic is synced.
	s.unhooks = append(s.unhooks,
		e.client.OnStatus(func(st types.ConnStatus) { e.onStatus(s, st) }),
		e.client.OnConnected(func() { e.onConnected(s) }),
	)

	e.session.Store(s)

	if err := e.client.Connect(ctx); err != nil {
		e.logger.Warn("broker connect failed, continuing in background", "engine_id", e.id, "error", err)
	}

	e.syncPersonal(s)
	if err := s.registry.EnsureSubscribed(e.cfg.Destinations.Broadcast, e.frameHandler(s), nil); err != nil {
		e.logger.Warn("broadcast subscribe failed", "destination", e.cfg.Destinations.Broadcast, "error", err)
	}

	if err := s.poller.Start(s.ctx); err != nil {
		e.logger.Error("failed to start poller", "error", err)
	}

	e.logger.Info("engine opened", "engine_id", e.id, "broker", e.cfg.BrokerURL)

	return nil
}

// Close stops polling, cancels every pending timer, releases all
// subscriptions, disconnects from the broker and waits for the internal
// goroutines to exit. Pending listener notifications are dropped. Calling
// Close on a closed engine is a no-op.
//
// Close must not be called from a listener.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.session.Swap(nil)
	if s == nil {
		return
	}

	if err := s.poller.Stop(); err != nil && !errors.Is(err, poller.ErrNotStarted) {
		e.logger.Warn("failed to stop poller", "error", err)
	}

	for _, unhook := range s.unhooks {
		unhook()
	}

	s.registry.Close()
	e.client.Disconnect()

	s.cancel()
	s.events.close()
	s.notify.close()
	s.wg.Wait()

	// The loop has exited, so its timer can be touched here.
	if s.settle != nil {
		s.settle.Stop()
	}
	e.shaker.Stop()

	e.logger.Info("engine closed", "engine_id", e.id)
}

// IsOpen reports whether the engine is between Open and Close.
func (e *Engine) IsOpen() bool {
	return e.session.Load() != nil
}

// CurrentMergedView returns a copy of the merged view, newest first.
func (e *Engine) CurrentMergedView() []Notification {
	return cloneNotifications(e.view.Load().items)
}

// CurrentUnreadCount returns the number of unread entries in the merged view.
func (e *Engine) CurrentUnreadCount() int {
	return e.view.Load().unread
}

// BadgeText returns the badge label for the current unread count.
func (e *Engine) BadgeText() string {
	return detector.BadgeText(e.CurrentUnreadCount())
}

// Shaking reports whether the post-alert shaking flag is set.
func (e *Engine) Shaking() bool {
	return e.shaker.Shaking()
}

// Status returns the broker connection status.
func (e *Engine) Status() ConnStatus {
	return e.client.Status()
}

// OnMergedViewChanged registers fn to receive every new merged view and its
// unread count. Each call gets its own copy of the view.
//
// Returns:
//   - func(): Disposer that removes the listener; safe to call more than once
func (e *Engine) OnMergedViewChanged(fn func(view []Notification, unread int)) func() {
	return addListener(e.viewListeners, &e.nextListenerID, fn)
}

// OnAlertTriggered registers fn to receive new-arrival alerts. An alert
// carries the badge text, the shake duration and the two-tone chime to play.
func (e *Engine) OnAlertTriggered(fn func(Alert)) func() {
	return addListener(e.alertListeners, &e.nextListenerID, fn)
}

// OnConnectivityChanged registers fn to receive broker status changes.
// ConnStatus.Lost reports that automatic reconnects stopped; call Reconnect.
func (e *Engine) OnConnectivityChanged(fn func(ConnStatus)) func() {
	return addListener(e.connListeners, &e.nextListenerID, fn)
}

// OnShakingChanged registers fn to receive flips of the shaking flag.
func (e *Engine) OnShakingChanged(fn func(bool)) func() {
	return addListener(e.shakeListeners, &e.nextListenerID, fn)
}

// AcknowledgeRead marks a notification READ locally and then on the server.
//
// The local update is applied before the REST call and is kept even if the
// call fails. Notifications without an explicit ID exist only locally and are
// not sent to the server.
//
// Parameters:
//   - ctx: Bounds the wait for the local update and the REST call
//   - id: Identity key or explicit ID
//
// Returns:
//   - error: ErrEngineClosed, ErrAcknowledgeFailed, or a context error
func (e *Engine) AcknowledgeRead(ctx context.Context, id string) error {
	s := e.session.Load()
	if s == nil {
		return ErrEngineClosed
	}

	var (
		entry Notification
		found bool
	)
	err := e.apply(ctx, s, func() {
		entry, found = e.merger.MarkRead(id)
		if found {
			e.publish(s)
		}
	})
	if err != nil {
		return err
	}

	serverID := id
	if found {
		serverID = entry.ID
	}
	if serverID == "" {
		e.logger.Debug("notification has no server id, acknowledged locally only", "key", entry.Key)
		return nil
	}

	status, err := e.api.MarkAsRead(ctx, serverID)

	return e.ackResult("mark_read", serverID, status, err)
}

// AcknowledgeAllRead marks every notification READ locally and then on the server.
func (e *Engine) AcknowledgeAllRead(ctx context.Context) error {
	s := e.session.Load()
	if s == nil {
		return ErrEngineClosed
	}

	err := e.apply(ctx, s, func() {
		if e.merger.MarkAllRead() > 0 {
			e.publish(s)
		}
	})
	if err != nil {
		return err
	}

	status, err := e.api.MarkAllAsRead(ctx)

	return e.ackResult("mark_all_read", "", status, err)
}

// Refresh fetches the snapshot now and waits until it is merged.
func (e *Engine) Refresh(ctx context.Context) error {
	s := e.session.Load()
	if s == nil {
		return ErrEngineClosed
	}

	start := time.Now()
	err := e.poll(ctx, s)
	e.metrics.RecordPoll(err == nil, time.Since(start).Seconds())

	return err
}

// Reconnect tears down the broker connection and starts a fresh attempt
// budget. Subscriptions are restored in registration order once connected.
func (e *Engine) Reconnect(ctx context.Context) error {
	if e.session.Load() == nil {
		return ErrEngineClosed
	}

	return e.client.Reconnect(ctx)
}

// Send publishes body to destination, prefixed with the app namespace.
// It reports false when the broker is not connected.
func (e *Engine) Send(destination string, body []byte, headers map[string]string) bool {
	if e.session.Load() == nil {
		return false
	}

	return e.client.Send(destination, body, headers)
}

// PersonalDestination returns the private topic of the current subject, or ""
// when no subject is known.
func (e *Engine) PersonalDestination() string {
	subject := strings.TrimSpace(e.creds.CurrentSubjectID())
	if subject == "" {
		return ""
	}

	return e.cfg.Destinations.PersonalPrefix + "." + subjectToken(subject)
}

// poll fetches the snapshot and merges it on the event loop.
func (e *Engine) poll(ctx context.Context, s *session) error {
	raw, err := e.api.FetchRecent(ctx, 0, e.cfg.PollLimit)
	if err != nil {
		return fmt.Errorf("fetching recent notifications: %w", err)
	}

	items := make([]Notification, 0, len(raw))
	for _, r := range raw {
		n, _ := e.decoder.Decode(r)
		items = append(items, n)
	}

	return e.apply(ctx, s, func() {
		e.merger.ReplaceSnapshot(items)
		e.logger.Debug("snapshot merged",
			"snapshot_size", e.merger.SnapshotLen(),
			"pushed_size", e.merger.PushLen(),
			"unread", e.merger.UnreadCount(),
		)
		e.publish(s)
		e.scheduleArm(s)
	})
}

// frameHandler hands broker frames to the event loop in delivery order.
func (e *Engine) frameHandler(s *session) transport.Handler {
	return func(f transport.Frame) {
		s.events.push(func() {
			var n Notification
			if f.Structured {
				n = e.decoder.DecodeValue(f.Value)
			} else {
				n = e.decoder.DecodeRaw(string(f.Data))
			}

			e.merger.Push(n)
			e.logger.Debug("notification pushed", "destination", f.Destination, "key", n.Key)
			e.publish(s)
		})
	}
}

// publish stores the new view, notifies listeners and runs the detector.
// Event loop only.
func (e *Engine) publish(s *session) {
	items := e.merger.View()
	unread := e.merger.UnreadCount()

	e.view.Store(&viewState{items: items, unread: unread})
	e.metrics.SetMergedSize(len(items))
	e.metrics.SetUnreadCount(unread)

	s.notify.push(func() {
		e.viewListeners.Range(func(_ uint64, fn func([]Notification, int)) bool {
			fn(cloneNotifications(items), unread)
			return true
		})
	})

	alert, ok := e.detector.Observe(e.merger.PushTotal(), unread)
	if !ok {
		return
	}

	e.metrics.IncrementAlert()
	e.logger.Info("new notification alert", "unread", unread)
	e.shaker.Start(alert.ShakeFor)

	s.notify.push(func() {
		e.alertListeners.Range(func(_ uint64, fn func(Alert)) bool {
			fn(alert)
			return true
		})
	})
}

// scheduleArm starts the settle delay after the first successful poll.
// Event loop only.
func (e *Engine) scheduleArm(s *session) {
	if s.polled {
		return
	}
	s.polled = true

	arm := func() {
		e.detector.Arm()
		e.logger.Debug("new-arrival alerts armed", "engine_id", e.id)
	}

	if e.cfg.SettleDelay <= 0 {
		arm()
		return
	}

	s.settle = time.AfterFunc(e.cfg.SettleDelay, func() { s.events.push(arm) })
}

// onConnected re-syncs the personal topic and polls right away, since pushes
// sent while disconnected were missed.
func (e *Engine) onConnected(s *session) {
	e.syncPersonal(s)
	if s.poller.Trigger() {
		e.logger.Debug("connected, catch-up poll requested", "engine_id", e.id)
	}
}

// syncPersonal keeps the personal subscription in line with the current
// subject. It runs at Open and after every connect, so a login that happens
// while open is picked up on the next connect.
func (e *Engine) syncPersonal(s *session) {
	dest := e.PersonalDestination()

	s.subMu.Lock()
	defer s.subMu.Unlock()

	if dest != s.personal && s.personal != "" {
		s.registry.Release(s.personal)
		e.logger.Info("subject changed, released personal topic", "destination", s.personal)
	}
	s.personal = dest

	if dest == "" {
		e.logger.Debug("no subject id, personal topic skipped")
		return
	}

	if err := s.registry.EnsureSubscribed(dest, e.frameHandler(s), nil); err != nil {
		e.logger.Debug("personal subscribe skipped", "destination", dest, "error", err)
	}
}

func (e *Engine) onStatus(s *session, st ConnStatus) {
	if st.Lost {
		e.logger.Warn("broker connectivity lost, waiting for Reconnect",
			"attempts", st.Attempts, "error", st.Err)
	}

	s.notify.push(func() {
		e.connListeners.Range(func(_ uint64, fn func(ConnStatus)) bool {
			fn(st)
			return true
		})
	})
}

func (e *Engine) onShake(shaking bool) {
	s := e.session.Load()
	if s == nil {
		return
	}

	s.notify.push(func() {
		e.shakeListeners.Range(func(_ uint64, fn func(bool)) bool {
			fn(shaking)
			return true
		})
	})
}

// apply runs fn on the event loop and waits for it to finish.
func (e *Engine) apply(ctx context.Context, s *session, fn func()) error {
	done := make(chan struct{})
	if !s.events.push(func() {
		fn()
		close(done)
	}) {
		return ErrEngineClosed
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		select {
		case <-done:
			return nil
		default:
			return ErrEngineClosed
		}
	}
}

func (e *Engine) ackResult(op, id string, status int, err error) error {
	if err != nil {
		e.logger.Warn("read acknowledgement failed", "op", op, "id", id, "error", err)
		return fmt.Errorf("%w: %w", ErrAcknowledgeFailed, err)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		e.logger.Warn("read acknowledgement rejected", "op", op, "id", id, "status", status)
		return fmt.Errorf("%w: status %d", ErrAcknowledgeFailed, status)
	}

	return nil
}

func addListener[T any](m *xsync.Map[uint64, T], next *atomic.Uint64, fn T) func() {
	id := next.Add(1)
	m.Store(id, fn)

	return func() { m.Delete(id) }
}

func cloneNotifications(items []Notification) []Notification {
	out := make([]Notification, len(items))
	for i, n := range items {
		out[i] = n.Clone()
	}

	return out
}

// subjectToken makes a subject ID usable as a single NATS subject token.
func subjectToken(subject string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}

		return r
	}, subject)
}
