package types

// ConnState represents the transport connection lifecycle state.
//
// States follow a defined progression:
//
//	ConnDisconnected → ConnConnecting → ConnConnected → (ConnError | ConnDisconnected)
//
// ConnError moves back to ConnConnecting after a fixed delay until the bounded
// attempt budget is spent; after that the client stays in ConnError until an
// explicit reconnect.
type ConnState int32

const (
	// ConnDisconnected is the initial state and the state after an explicit disconnect.
	ConnDisconnected ConnState = iota

	// ConnConnecting indicates a connection attempt is in flight.
	ConnConnecting

	// ConnConnected indicates the broker connection is established and authenticated.
	ConnConnected

	// ConnError indicates the last attempt failed or the connection dropped.
	ConnError
)

// String returns the string representation of the state.
func (s ConnState) String() string {
	switch s {
	case ConnDisconnected:
		return "Disconnected"
	case ConnConnecting:
		return "Connecting"
	case ConnConnected:
		return "Connected"
	case ConnError:
		return "Error"
	default:
		return "Unknown"
	}
}

// ConnStatus is a point-in-time view of the transport connection.
type ConnStatus struct {
	// State is the current lifecycle state.
	State ConnState

	// Attempts is the number of consecutive failed connection attempts.
	Attempts int

	// Lost reports that the bounded retry budget is exhausted and no further
	// automatic attempts will be made until Reconnect is called.
	Lost bool

	// Err is the last connection error, if any.
	Err error
}
