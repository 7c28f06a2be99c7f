package types

import (
	"context"
	"encoding/json"
)

// NotificationAPI is the REST collaborator that owns the authoritative notification state.
//
// Implementations can target various backends:
//   - REST: the production HTTP backend (source.NewREST)
//   - Static: fixed list for testing (source.NewStatic)
//
// Items are returned undecoded so that both intake paths share one decoder.
type NotificationAPI interface {
	// FetchRecent returns the most recent notifications.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - offset: Number of items to skip
	//   - limit: Maximum number of items to return
	//
	// Returns:
	//   - []json.RawMessage: One raw JSON object per notification
	//   - error: Fetch error (nil on success)
	FetchRecent(ctx context.Context, offset, limit int) ([]json.RawMessage, error)

	// MarkAsRead acknowledges a single notification on the server.
	//
	// Returns:
	//   - int: HTTP-like status code reported by the backend
	//   - error: Transport or status error
	MarkAsRead(ctx context.Context, id string) (int, error)

	// MarkAllAsRead acknowledges every notification of the current subject.
	MarkAllAsRead(ctx context.Context) (int, error)
}

// CredentialProvider supplies the identity used for topic naming and broker auth.
//
// Both methods return the empty string when no credential is available yet;
// callers treat that as a recoverable condition.
type CredentialProvider interface {
	// CurrentSubjectID returns the subject (user) ID that names the private topic.
	CurrentSubjectID() string

	// AuthToken returns the token attached to the broker connection.
	AuthToken() string
}
