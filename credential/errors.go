package credential

import "errors"

// ErrInvalidToken is returned when a token cannot be parsed as a JWT or lacks
// the requested claim.
var ErrInvalidToken = errors.New("invalid token")
