// Package natsutil classifies NATS client errors.
package natsutil

import (
	"errors"
	"strings"

	"github.com/arloliu/notisync/types"
	"github.com/nats-io/nats.go"
)

// IsConnectivityError checks if an error is caused by connectivity issues.
//
// This includes NATS timeouts, connection refused, disconnections, etc.
// The transport treats these as transient and retries them on its bounded schedule.
//
// Parameters:
//   - err: Error to check
//
// Returns:
//   - bool: true if error indicates connectivity issue
func IsConnectivityError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, types.ErrConnectivity) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrDisconnected) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrStaleConnection) ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "i/o timeout")
}

// IsAuthError checks if an error is the broker rejecting our credentials.
//
// Authorization failures are recoverable: the token may be refreshed by the
// time the next attempt runs.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, nats.ErrAuthorization) ||
		errors.Is(err, nats.ErrAuthExpired) ||
		errors.Is(err, nats.ErrAuthRevoked) ||
		types.IsAuthError(err)
}

// Classify returns a short label for logs and metrics.
//
// Returns:
//   - string: "auth", "connectivity" or "other"
func Classify(err error) string {
	switch {
	case IsAuthError(err):
		return "auth"
	case IsConnectivityError(err):
		return "connectivity"
	default:
		return "other"
	}
}
