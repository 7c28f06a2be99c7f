package types

import "time"

// ReadStatus is the canonical read-state flag of a notification.
type ReadStatus string

const (
	// StatusUnknown means the payload carried no status field.
	StatusUnknown ReadStatus = ""

	// StatusUnread marks a notification the user has not acted on.
	StatusUnread ReadStatus = "UNREAD"

	// StatusRead marks a notification the user has read.
	StatusRead ReadStatus = "READ"
)

// Notification is the canonical unit shared by the snapshot and push intake paths.
//
// Payloads from older backends may carry only the IsRead boolean; newer ones carry
// Status. Read() reconciles both, with Status taking precedence when present.
type Notification struct {
	// Key is the identity key used for deduplication. It is derived from ID when
	// present, otherwise from stable content fields.
	Key string `json:"-"`

	// ID is the explicit identifier supplied by the backend, if any.
	ID string `json:"id,omitempty"`

	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`

	// CreatedAt is normalized to a timezone-aware value. The zero value means the
	// source timestamp was missing or unparsable.
	CreatedAt time.Time `json:"createdAt,omitzero"`

	Status ReadStatus `json:"status,omitempty"`
	IsRead *bool      `json:"isRead,omitempty"`

	// ActionPath is an optional deep link the user navigates to on click.
	ActionPath string `json:"actionPath,omitempty"`
}

// Read resolves the read state of the notification.
//
// Status READ always wins, status UNREAD wins over IsRead, and IsRead is only
// consulted when Status is absent. A notification with neither is unread.
//
// Returns:
//   - bool: true if the notification is read
func (n Notification) Read() bool {
	switch n.Status {
	case StatusRead:
		return true
	case StatusUnread:
		return false
	default:
		return n.IsRead != nil && *n.IsRead
	}
}

// HasTimestamp reports whether CreatedAt holds a usable value.
func (n Notification) HasTimestamp() bool {
	return !n.CreatedAt.IsZero()
}

// MarkRead flips the notification to READ in both representations.
func (n *Notification) MarkRead() {
	read := true
	n.Status = StatusRead
	n.IsRead = &read
}

// Clone returns a copy that shares no pointers with n.
func (n Notification) Clone() Notification {
	if n.IsRead != nil {
		v := *n.IsRead
		n.IsRead = &v
	}

	return n
}
