package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	t.Run("errors.Is works through wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("subscribe user.noti.7: %w", ErrNotConnected)
		require.True(t, errors.Is(wrapped, ErrNotConnected))
		require.False(t, errors.Is(wrapped, ErrNoCredentials))
	})

	t.Run("all errors are distinct", func(t *testing.T) {
		allErrors := []error{
			ErrNotConnected,
			ErrNoCredentials,
			ErrConnectivity,
			ErrRetryExhausted,
			ErrUnexpectedStatus,
			ErrMalformedResponse,
			ErrCredentialNotFound,
		}

		for i, err1 := range allErrors {
			for j, err2 := range allErrors {
				if i == j {
					require.True(t, errors.Is(err1, err2), "error should equal itself: %v", err1)
				} else {
					require.False(t, errors.Is(err1, err2), "errors should be distinct: %v vs %v", err1, err2)
				}
			}
		}
	})
}

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"authorization violation", errors.New("nats: Authorization Violation"), true},
		{"wrapped authorization", fmt.Errorf("dial: %w", errors.New("nats: authorization violation")), true},
		{"expired", errors.New("nats: authentication expired"), true},
		{"connection refused", errors.New("dial tcp 127.0.0.1:4222: connect: connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsAuthError(tt.err))
		})
	}
}
