package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/arloliu/notisync/internal/logging"
	"github.com/arloliu/notisync/types"
)

// Common errors for poller operations.
var (
	ErrNotStarted     = errors.New("poller not started")
	ErrAlreadyStarted = errors.New("poller already started")
)

// Func performs one fetch. Its context is cancelled by Stop and bounded by the
// poll timeout.
type Func func(ctx context.Context) error

// Poller calls a Func periodically.
type Poller struct {
	fn       Func
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	logger  types.Logger
	metrics types.SyncMetrics
	started bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	trigger chan struct{}
}

// New creates a new poller.
//
// Parameters:
//   - fn: Fetch function
//   - interval: Time between fetches
//   - timeout: Upper bound for a single fetch (0 means no bound)
//
// Returns:
//   - *Poller: New poller instance
func New(fn Func, interval, timeout time.Duration) *Poller {
	return &Poller{
		fn:       fn,
		interval: interval,
		timeout:  timeout,
		logger:   logging.NewNop(),
		trigger:  make(chan struct{}, 1),
	}
}

// SetLogger sets the logger. Optional.
func (p *Poller) SetLogger(logger types.Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if logger != nil {
		p.logger = logger
	}
}

// SetMetrics sets the metrics collector for poll outcomes.
//
// Optional. If not set, metrics are not recorded.
func (p *Poller) SetMetrics(metrics types.SyncMetrics) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics = metrics
}

// Start begins polling in the background. The first fetch runs immediately.
//
// Parameters:
//   - ctx: Parent context; cancelling it stops future fetches like Stop does,
//     except Stop must still be called to wait for the goroutine
//
// Returns:
//   - error: ErrAlreadyStarted if already running
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.started = true
	p.cancel = cancel
	p.doneCh = make(chan struct{})

	go p.loop(loopCtx, p.doneCh)

	return nil
}

// Stop cancels polling and blocks until the loop goroutine exits.
//
// Returns:
//   - error: ErrNotStarted if not running
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}

	p.started = false
	p.cancel()
	done := p.doneCh
	p.mu.Unlock()

	<-done

	return nil
}

// Trigger requests an immediate fetch. It never blocks; triggers issued while a
// fetch is pending are coalesced.
//
// Returns:
//   - bool: false if the poller is not running
func (p *Poller) Trigger() bool {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	if !started {
		return false
	}

	select {
	case p.trigger <- struct{}{}:
	default:
	}

	return true
}

// isStarted returns whether the poller is currently running.
func (p *Poller) isStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.started
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		case <-p.trigger:
			p.poll(ctx)
			ticker.Reset(p.interval)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	fetchCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	err := p.fn(fetchCtx)
	elapsed := time.Since(start)

	p.mu.Lock()
	logger, metrics := p.logger, p.metrics
	p.mu.Unlock()

	if metrics != nil {
		metrics.RecordPoll(err == nil, elapsed.Seconds())
	}

	if err != nil && ctx.Err() == nil {
		logger.Warn("poll failed", "error", err, "elapsed", elapsed)
	}
}
