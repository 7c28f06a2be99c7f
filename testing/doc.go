// Package testing provides test utilities for the notisync library.
//
// This package offers helpers for setting up test environments, particularly
// embedded NATS servers standing in for the notification broker. It follows Go's
// convention of providing testing utilities in a dedicated package (similar to
// net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: Single in-process NATS server plus a connected client
//   - NewRestartableNATS: Server on a fixed port that can be stopped and restarted
//     to simulate broker outages
//   - NewTestLogger: Logger that routes to t.Logf
//
// Example usage:
//
//	import (
//	    "testing"
//	    notitest "github.com/arloliu/notisync/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    ns, nc := notitest.StartEmbeddedNATS(t)
//	    // Publish with nc, point the engine at ns.ClientURL()
//	}
package testing
