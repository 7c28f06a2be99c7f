// Package poller runs a fetch function on a fixed interval.
//
// # Poller Lifecycle
//
//  1. Create poller with New(fn, interval, timeout)
//  2. Start polling with Start(ctx); the first fetch runs immediately
//  3. Force an out-of-band fetch with Trigger()
//  4. Stop polling with Stop(), which waits for an in-flight fetch to end
//
// Example:
//
//	p := poller.New(func(ctx context.Context) error {
//	    return refreshSnapshot(ctx)
//	}, 30*time.Second, 10*time.Second)
//	if err := p.Start(ctx); err != nil {
//	    return err
//	}
//	defer p.Stop()
//
// Fetches never overlap: a Trigger during a fetch is coalesced into one
// follow-up fetch.
//
// # Thread Safety
//
// The Poller is thread-safe and can be accessed concurrently from multiple
// goroutines.
package poller
