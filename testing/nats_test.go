package testing

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func TestStartEmbeddedNATS(t *testing.T) {
	ns, nc := StartEmbeddedNATS(t)

	require.NotNil(t, ns)
	require.True(t, nc.IsConnected())
	require.True(t, ns.ReadyForConnections(1*time.Second))
}

func TestStartEmbeddedNATS_AuthToken(t *testing.T) {
	ns, nc := StartEmbeddedNATS(t, WithAuthToken("s3cret"))
	require.True(t, nc.IsConnected())

	_, err := nats.Connect(ns.ClientURL(), nats.Token("wrong"), nats.Timeout(time.Second))
	require.Error(t, err)
}

// TestStartEmbeddedNATS_ParallelTests verifies parallel test execution.
func TestStartEmbeddedNATS_ParallelTests(t *testing.T) {
	t.Parallel()

	for range 5 {
		t.Run("parallel", func(t *testing.T) {
			t.Parallel()

			_, nc := StartEmbeddedNATS(t)
			require.True(t, nc.IsConnected())
		})
	}
}

func TestRestartableNATS(t *testing.T) {
	r := NewRestartableNATS(t)
	url := r.URL()

	nc, err := nats.Connect(url, nats.NoReconnect())
	require.NoError(t, err)
	defer nc.Close()

	r.Stop()
	require.Eventually(t, func() bool { return !nc.IsConnected() }, 2*time.Second, 10*time.Millisecond)

	r.Restart()
	require.Equal(t, url, r.URL())

	nc2, err := nats.Connect(url)
	require.NoError(t, err)
	nc2.Close()
}
