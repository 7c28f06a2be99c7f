package notisync

import "errors"

// Sentinel errors returned by the Engine.
var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAPIRequired is returned when the REST collaborator is nil.
	ErrAPIRequired = errors.New("notification API is required")

	// ErrCredentialsRequired is returned when the credential provider is nil.
	ErrCredentialsRequired = errors.New("credential provider is required")

	// ErrEngineClosed is returned by operations that need an open engine.
	ErrEngineClosed = errors.New("engine not open")

	// ErrAcknowledgeFailed is returned when the backend rejects a read acknowledgement.
	// The local READ state is kept.
	ErrAcknowledgeFailed = errors.New("read acknowledgement failed")
)
