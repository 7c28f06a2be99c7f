package types

import (
	"errors"
	"strings"
)

// Sentinel errors shared by the notisync packages.
//
// All components should use these sentinel errors for known error conditions
// and wrap external errors with context using fmt.Errorf("%s: %w", msg, err).

// Transport errors - returned by the broker transport client.
var (
	// ErrNotConnected is returned when an operation needs a CONNECTED transport.
	ErrNotConnected = errors.New("transport not connected")

	// ErrNoCredentials is returned when no auth token is available for connecting.
	ErrNoCredentials = errors.New("no credentials available")

	// ErrConnectivity indicates a broker connectivity issue.
	// Used to distinguish network failures from application errors.
	ErrConnectivity = errors.New("connectivity issue")

	// ErrRetryExhausted is returned when the bounded reconnect policy gave up.
	ErrRetryExhausted = errors.New("reconnect attempts exhausted")
)

// Collaborator errors - returned by the REST and credential collaborators.
var (
	// ErrUnexpectedStatus is returned when the REST backend answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected response status")

	// ErrMalformedResponse is returned when a snapshot response cannot be decoded.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrCredentialNotFound is returned when a credential store holds no value for a key.
	ErrCredentialNotFound = errors.New("credential not found")
)

// IsAuthError checks if an error indicates that the broker rejected our credentials.
//
// NATS reports authorization failures either as a typed error or as a protocol
// error whose message contains "authorization violation".
//
// Parameters:
//   - err: The error to check
//
// Returns:
//   - bool: true if the error is an authorization failure
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "authorization violation") ||
		strings.Contains(msg, "authentication expired") ||
		strings.Contains(msg, "authentication revoked")
}
