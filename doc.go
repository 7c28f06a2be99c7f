// Package notisync keeps a client-side notification view in sync with a
// backend that offers both a REST snapshot and a live NATS push stream.
//
// The Engine merges the two sources into one deduplicated list, remembers
// which items the user has read, and decides when a newly arrived unread
// notification deserves an alert (badge, chime, shake) versus a silent update.
//
// # Quick Start
//
//	import (
//	    "github.com/arloliu/notisync"
//	    "github.com/arloliu/notisync/credential"
//	    "github.com/arloliu/notisync/source"
//	)
//
//	cfg, err := notisync.LoadConfig("notisync.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	creds := credential.NewStaticFromToken(token)
//	api, err := source.NewREST(source.RESTConfig{BaseURL: apiURL}, creds)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine, err := notisync.NewEngine(cfg, api, creds)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine.OnMergedViewChanged(func(view []notisync.Notification, unread int) {
//	    render(view, unread)
//	})
//	engine.OnAlertTriggered(func(a notisync.Alert) {
//	    playChime(a.Chime)
//	})
//
//	if err := engine.Open(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
// # Architecture
//
//	transport     NATS connection with bounded fixed-delay reconnect
//	subscription  idempotent topic registry, re-applied on every connect
//	merge         snapshot + push ring buffer, sticky read state
//	detector      unread-delta alert decision and shake timer
//
// Every state change runs on a single per-session event loop; listeners are
// invoked from a separate dispatcher goroutine and may call back into the
// Engine. Close must not be called from inside a listener.
//
// # Alerts
//
// The first snapshot after Open only establishes a baseline. Alerts arm once
// SettleDelay has elapsed after that poll, and fire only when the number of
// pushed notifications and the unread count both grew since the last
// observation.
//
// See the examples/ directory for a complete working program.
package notisync
