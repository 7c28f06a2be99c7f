package subscription

import "errors"

// ErrRegistryClosed is returned by EnsureSubscribed after Close.
var ErrRegistryClosed = errors.New("subscription registry closed")
