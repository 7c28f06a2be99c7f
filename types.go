package notisync

import (
	"github.com/arloliu/notisync/detector"
	"github.com/arloliu/notisync/types"
)

// Re-export types from the types and detector packages.
//
// Internal packages depend on `types` without depending on the root package;
// these aliases give users a single import for the common API.
type (
	Notification = types.Notification
	ReadStatus   = types.ReadStatus
	ConnState    = types.ConnState
	ConnStatus   = types.ConnStatus
	Alert        = detector.Alert
	Tone         = detector.Tone
)

// Re-export interfaces from the types package for convenience.
type (
	NotificationAPI    = types.NotificationAPI
	CredentialProvider = types.CredentialProvider
	MetricsCollector   = types.MetricsCollector
	Logger             = types.Logger
)

// Re-export constants from the types package.
const (
	StatusUnread = types.StatusUnread
	StatusRead   = types.StatusRead

	ConnDisconnected = types.ConnDisconnected
	ConnConnecting   = types.ConnConnecting
	ConnConnected    = types.ConnConnected
	ConnError        = types.ConnError
)
