package subscription

import (
	"cmp"
	"context"
	"errors"
	rand "math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/arloliu/notisync/transport"
	"github.com/arloliu/notisync/types"
)

// Transport is the part of transport.Client the registry depends on.
type Transport interface {
	Subscribe(destination string, handler transport.Handler, headers map[string]string) (*transport.Subscription, error)
	Ready() <-chan struct{}
	OnConnected(fn func()) func()
}

// entry is one tracked destination.
type entry struct {
	destination string
	handler     transport.Handler
	headers     map[string]string
	seq         uint64

	sub     *transport.Subscription
	pending bool               // a deferred retry goroutine is running
	cancel  context.CancelFunc // stops the deferred retry
}

func (e *entry) alive() bool {
	return e.sub != nil && e.sub.Alive()
}

// finishRetry marks the deferred retry as done. Must hold the registry lock.
func (e *entry) finishRetry() {
	if e.cancel != nil {
		e.cancel()
	}
	e.pending = false
	e.cancel = nil
}

// Registry enforces at most one live subscription per destination.
//
// All methods are safe for concurrent use.
type Registry struct {
	transport Transport
	cfg       Config
	logger    types.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
	closed  bool

	ctx    context.Context //nolint:containedctx // lifetime of deferred retries
	cancel context.CancelFunc
	wg     sync.WaitGroup
	unhook func()
}

// NewRegistry creates a registry bound to t and hooks re-subscription into
// every successful connect.
//
// Parameters:
//   - t: Transport used to subscribe (usually *transport.Client)
//   - cfg: Registry configuration
//
// Returns:
//   - *Registry: Registry with no tracked destinations
//
// Example:
//
//	reg := subscription.NewRegistry(client, subscription.Config{
//	    RetryInterval: 250 * time.Millisecond,
//	    MaxAttempts:   20,
//	})
//	defer reg.Close()
//	reg.EnsureSubscribed("topic.noti", handler, nil)
func NewRegistry(t Transport, cfg Config) *Registry {
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		transport: t,
		cfg:       cfg,
		logger:    cfg.Logger,
		rng:       newRNG(cfg.RetrySeed),
		entries:   make(map[string]*entry),
		ctx:       ctx,
		cancel:    cancel,
	}
	r.unhook = t.OnConnected(r.resubscribe)

	return r
}

// EnsureSubscribed makes sure exactly one live subscription to destination exists.
//
// If one is already tracked and alive this is a no-op. Otherwise it subscribes
// right away, or, when the transport is not ready, keeps the intent and retries
// in the background until the transport connects or MaxAttempts is reached.
//
// Parameters:
//   - destination: Broker destination
//   - handler: Frame handler; replaces the stored handler for a dead entry
//   - headers: Subscribe headers (see transport.QueueHeader)
//
// Returns:
//   - error: ErrRegistryClosed after Close, nil otherwise
func (r *Registry) EnsureSubscribed(destination string, handler transport.Handler, headers map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}

	e, ok := r.entries[destination]
	if ok && e.alive() {
		return nil
	}

	if !ok {
		r.seq++
		e = &entry{destination: destination, seq: r.seq}
		r.entries[destination] = e
		emitTracked(r.cfg.Metrics, len(r.entries))
	}
	e.handler = handler
	e.headers = headers

	if e.pending {
		return nil
	}

	if err := r.subscribeLocked(e); err != nil {
		r.deferLocked(e, err)
		return nil
	}
	emitSubscribe(r.cfg.Metrics, resultSuccess)

	return nil
}

// Release unsubscribes destination and forgets it. Safe when nothing is tracked.
func (r *Registry) Release(destination string) {
	r.mu.Lock()
	e, ok := r.entries[destination]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.entries, destination)
	if e.cancel != nil {
		e.cancel()
	}
	sub := e.sub
	e.sub = nil
	emitTracked(r.cfg.Metrics, len(r.entries))
	r.mu.Unlock()

	r.unsubscribe(destination, sub)
}

// Close releases every entry, cancels pending retries and waits for them to exit.
// Calling Close more than once is a no-op.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.cancel()
	entries := r.entries
	r.entries = make(map[string]*entry)
	emitTracked(r.cfg.Metrics, 0)
	r.mu.Unlock()

	if r.unhook != nil {
		r.unhook()
	}

	for _, e := range sortedEntries(entries) {
		r.unsubscribe(e.destination, e.sub)
	}

	r.wg.Wait()
}

// destinations returns the tracked destinations in registration order.
func (r *Registry) destinations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := sortedEntries(r.entries)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.destination
	}

	return out
}

// Alive reports whether destination currently has a live subscription.
func (r *Registry) Alive(destination string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[destination]

	return ok && e.alive()
}

// resubscribe runs after every successful connect.
func (r *Registry) resubscribe() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.reconcileLocked(resultResubscribed)
}

// reconcileLocked subscribes every dead entry in registration order. Entries
// that fail are handed to a deferred retry. Must hold r.mu.
func (r *Registry) reconcileLocked(result string) {
	for _, e := range sortedEntries(r.entries) {
		if e.alive() {
			continue
		}

		if err := r.subscribeLocked(e); err != nil {
			if !e.pending {
				r.deferLocked(e, err)
			}

			continue
		}
		emitSubscribe(r.cfg.Metrics, result)
	}
}

// subscribeLocked subscribes e unless it is already alive. Must hold r.mu.
func (r *Registry) subscribeLocked(e *entry) error {
	if e.alive() {
		return nil
	}

	sub, err := r.transport.Subscribe(e.destination, e.handler, e.headers)
	if err != nil {
		return err
	}
	e.sub = sub
	r.logger.Debug("destination subscribed", "destination", e.destination)

	return nil
}

// deferLocked starts the background retry for e. Must hold r.mu.
func (r *Registry) deferLocked(e *entry, cause error) {
	ctx, cancel := context.WithCancel(r.ctx)
	e.pending = true
	e.cancel = cancel

	emitSubscribe(r.cfg.Metrics, resultDeferred)
	r.logger.Debug("subscribe deferred", "destination", e.destination, "error", cause)

	r.wg.Add(1)
	go r.retry(ctx, e, cause)
}

// retry waits for the transport to become ready (or the retry timer) and tries
// again, up to MaxAttempts times.
func (r *Registry) retry(ctx context.Context, e *entry, cause error) {
	defer r.wg.Done()

	var delay time.Duration
	waitReady := errors.Is(cause, types.ErrNotConnected)

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		delay = r.nextDelay(delay)

		var ready <-chan struct{}
		if waitReady {
			ready = r.transport.Ready()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-ready:
			timer.Stop()
		case <-timer.C:
		}

		r.mu.Lock()
		if ctx.Err() != nil || r.entries[e.destination] != e {
			r.mu.Unlock()
			return
		}

		// Subscribe everything that is dead, in order, so a deferred entry
		// never jumps ahead of an earlier registration.
		err := r.reconcileDeferredLocked(e)
		if e.alive() {
			e.finishRetry()
			r.mu.Unlock()
			emitSubscribe(r.cfg.Metrics, resultSuccess)

			return
		}
		r.mu.Unlock()

		waitReady = errors.Is(err, types.ErrNotConnected)
	}

	r.mu.Lock()
	e.finishRetry()
	r.mu.Unlock()

	emitSubscribe(r.cfg.Metrics, resultGaveUp)
	r.logger.Warn("giving up on subscribe", "destination", e.destination, "attempts", r.cfg.MaxAttempts)
}

// reconcileDeferredLocked subscribes dead entries registered up to and
// including self, leaving later ones to their own retries. Must hold r.mu.
//
// Returns the error of subscribing self, if any.
func (r *Registry) reconcileDeferredLocked(self *entry) error {
	for _, e := range sortedEntries(r.entries) {
		if e.seq >= self.seq {
			break
		}
		// A failing earlier entry keeps its own retry; it must not block self.
		_ = r.subscribeLocked(e)
	}

	return r.subscribeLocked(self)
}

// nextDelay returns the wait before the next deferred attempt.
//
// Without RetryJitter every wait is RetryInterval. With it, the first wait is
// RetryInterval and each later one is drawn uniformly from
// [RetryInterval, prev*DefaultBackoffMultiplier], capped at
// maxBackoffFactor*RetryInterval, so many clients that lost the broker at the
// same time do not re-subscribe in lockstep.
func (r *Registry) nextDelay(prev time.Duration) time.Duration {
	base := r.cfg.RetryInterval
	if !r.cfg.RetryJitter || prev <= 0 {
		return base
	}

	ceiling := min(time.Duration(float64(prev)*DefaultBackoffMultiplier), base*maxBackoffFactor)
	if ceiling <= base {
		return base
	}

	r.rngMu.Lock()
	jitter := r.rng.Int64N(int64(ceiling-base) + 1)
	r.rngMu.Unlock()

	return base + time.Duration(jitter)
}

// newRNG seeds a PCG source from seed, or randomly when seed is zero.
func newRNG(seed int64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // retry jitter
	}

	s := uint64(seed)

	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15)) //nolint:gosec // retry jitter
}

func (r *Registry) unsubscribe(destination string, sub *transport.Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Unsubscribe(); err != nil {
		r.logger.Debug("unsubscribe failed", "destination", destination, "error", err)
	}
}

// sortedEntries returns entries ordered by registration.
func sortedEntries(m map[string]*entry) []*entry {
	out := make([]*entry, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *entry) int { return cmp.Compare(a.seq, b.seq) })

	return out
}
