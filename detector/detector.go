package detector

import "time"

// State is the arming state of a Detector.
type State int

const (
	// StateUninitialized records baselines without alerting.
	StateUninitialized State = iota
	// StateArmed alerts on qualifying transitions.
	StateArmed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateArmed:
		return "ARMED"
	default:
		return "UNKNOWN"
	}
}

// Alert describes one qualifying transition and the side effects to play.
type Alert struct {
	At       time.Time
	Unread   int
	Badge    string
	ShakeFor time.Duration
	Chime    []Tone
}

// Detector tracks the last observed push total and unread count.
type Detector struct {
	state      State
	lastPush   uint64
	lastUnread int
	shakeFor   time.Duration
	now        func() time.Time
}

// New creates an unarmed detector.
//
// Parameters:
//   - shakeFor: How long the shaking flag stays set after an alert
//
// Returns:
//   - *Detector: Detector in StateUninitialized with a zero baseline
func New(shakeFor time.Duration) *Detector {
	return &Detector{shakeFor: shakeFor, now: time.Now}
}

// State returns the current arming state.
func (d *Detector) State() State {
	return d.state
}

// Arm moves the detector to StateArmed. Calling Arm again is a no-op.
func (d *Detector) Arm() {
	d.state = StateArmed
}

// Armed reports whether the detector alerts.
func (d *Detector) Armed() bool {
	return d.state == StateArmed
}

// Reset returns to StateUninitialized and clears the baseline.
func (d *Detector) Reset() {
	d.state = StateUninitialized
	d.lastPush = 0
	d.lastUnread = 0
}

// Observe compares the given counters against the previous observation and
// always records them as the new baseline.
//
// Parameters:
//   - pushTotal: Monotonic count of accepted push arrivals
//   - unread: Current unread count of the merged view
//
// Returns:
//   - Alert: The alert to play, valid only when ok is true
//   - bool: true when armed and both counters increased
func (d *Detector) Observe(pushTotal uint64, unread int) (Alert, bool) {
	pushGrew := pushTotal > d.lastPush
	unreadGrew := unread > d.lastUnread

	d.lastPush = pushTotal
	d.lastUnread = unread

	if d.state != StateArmed || !pushGrew || !unreadGrew {
		return Alert{}, false
	}

	return Alert{
		At:       d.now(),
		Unread:   unread,
		Badge:    BadgeText(unread),
		ShakeFor: d.shakeFor,
		Chime:    AlertChime(),
	}, true
}

// baseline returns the last observed counters.
func (d *Detector) baseline() (uint64, int) {
	return d.lastPush, d.lastUnread
}
