package merge

import (
	"slices"

	"github.com/arloliu/notisync/types"
)

// DefaultPushCapacity is the default size of the push ring buffer.
const DefaultPushCapacity = 50

// Merger owns the two intake collections and the merged view derived from them.
//
// Merger is not safe for concurrent use; the engine drives it from its single
// event loop so that every recomputation is atomic with respect to view reads.
type Merger struct {
	snapshot []types.Notification
	pushed   *Ring[types.Notification]

	// readKeys remembers keys observed READ so a stale payload cannot resurrect them.
	readKeys map[string]struct{}

	// pushTotal counts every accepted push, including ones evicted from the ring.
	pushTotal uint64

	view   []types.Notification
	unread int
}

// NewMerger creates a merger with the given push ring capacity.
func NewMerger(pushCapacity int) *Merger {
	if pushCapacity <= 0 {
		pushCapacity = DefaultPushCapacity
	}

	return &Merger{
		pushed:   NewRing[types.Notification](pushCapacity),
		readKeys: make(map[string]struct{}),
	}
}

// Reset drops both collections, the read memory and the push counter.
func (m *Merger) Reset() {
	m.snapshot = nil
	m.pushed.Reset()
	clear(m.readKeys)
	m.pushTotal = 0
	m.view = nil
	m.unread = 0
}

// ReplaceSnapshot replaces the polled snapshot wholesale and recomputes the view.
func (m *Merger) ReplaceSnapshot(items []types.Notification) {
	m.snapshot = make([]types.Notification, len(items))
	for i, n := range items {
		m.snapshot[i] = n.Clone()
	}
	m.recompute()
}

// Push appends a live notification and recomputes the view.
func (m *Merger) Push(n types.Notification) {
	m.pushed.Push(n.Clone())
	m.pushTotal++
	m.recompute()
}

// MarkRead optimistically flips every record with the given key or ID to READ.
//
// Parameters:
//   - id: Identity key or explicit ID
//
// Returns:
//   - types.Notification: The merged entry after the update
//   - bool: true if an entry matched
func (m *Merger) MarkRead(id string) (types.Notification, bool) {
	entry, ok := m.Lookup(id)
	if !ok {
		return types.Notification{}, false
	}

	m.markKey(entry.Key)
	m.recompute()

	entry, _ = m.Lookup(entry.Key)

	return entry, true
}

// MarkAllRead flips every merged entry to READ.
//
// Returns:
//   - int: Number of entries that were unread before the call
func (m *Merger) MarkAllRead() int {
	flipped := m.unread
	for _, n := range m.view {
		m.markKey(n.Key)
	}
	m.recompute()

	return flipped
}

// Lookup finds a merged entry by identity key, falling back to the explicit ID.
func (m *Merger) Lookup(id string) (types.Notification, bool) {
	for _, n := range m.view {
		if n.Key == id {
			return n.Clone(), true
		}
	}
	for _, n := range m.view {
		if n.ID != "" && n.ID == id {
			return n.Clone(), true
		}
	}

	return types.Notification{}, false
}

// View returns a copy of the merged view, newest first.
func (m *Merger) View() []types.Notification {
	out := make([]types.Notification, len(m.view))
	for i, n := range m.view {
		out[i] = n.Clone()
	}

	return out
}

// UnreadCount returns the number of unread entries in the merged view.
func (m *Merger) UnreadCount() int {
	return m.unread
}

// PushTotal returns the number of pushes accepted since creation.
func (m *Merger) PushTotal() uint64 {
	return m.pushTotal
}

// PushLen returns the number of pushes currently held in the ring.
func (m *Merger) PushLen() int {
	return m.pushed.Len()
}

// SnapshotLen returns the size of the current snapshot.
func (m *Merger) SnapshotLen() int {
	return len(m.snapshot)
}

func (m *Merger) markKey(key string) {
	m.readKeys[key] = struct{}{}

	for i := range m.snapshot {
		if m.snapshot[i].Key == key {
			m.snapshot[i].MarkRead()
		}
	}
	m.pushed.Each(func(n *types.Notification) {
		if n.Key == key {
			n.MarkRead()
		}
	})
}

func (m *Merger) recompute() {
	m.view = Merge(m.snapshot, m.pushed.Items(), m.readKeys)

	// Keep the sticky set bounded to keys still present in either collection.
	live := make(map[string]struct{}, len(m.view))
	m.unread = 0
	for _, n := range m.view {
		if n.Read() {
			live[n.Key] = struct{}{}
		} else {
			m.unread++
		}
	}
	m.readKeys = live
}

// Merge combines the snapshot and pushed collections into one view.
//
// The snapshot is applied first, then pushes in arrival order. For a repeated key
// the later record's present fields overlay the earlier ones, except read state:
// the result is READ if any contributing record, or readKeys, says so.
//
// Parameters:
//   - snapshot: Polled items
//   - pushed: Live items, oldest first
//   - readKeys: Keys already known to be READ (may be nil)
//
// Returns:
//   - []types.Notification: Deduplicated entries sorted newest first, undated last
func Merge(snapshot, pushed []types.Notification, readKeys map[string]struct{}) []types.Notification {
	index := make(map[string]int, len(snapshot)+len(pushed))
	out := make([]types.Notification, 0, len(snapshot)+len(pushed))

	add := func(n types.Notification) {
		if i, ok := index[n.Key]; ok {
			out[i] = overlay(out[i], n)
			return
		}
		index[n.Key] = len(out)
		out = append(out, n.Clone())
	}

	for _, n := range snapshot {
		add(n)
	}
	for _, n := range pushed {
		add(n)
	}

	for i := range out {
		if _, ok := readKeys[out[i].Key]; ok {
			out[i].MarkRead()
		}
	}

	slices.SortStableFunc(out, newestFirst)

	return out
}

// overlay applies later's present fields onto base with sticky-read semantics.
func overlay(base, later types.Notification) types.Notification {
	merged := base.Clone()

	if later.ID != "" {
		merged.ID = later.ID
	}
	if later.Title != "" {
		merged.Title = later.Title
	}
	if later.Message != "" {
		merged.Message = later.Message
	}
	if later.ActionPath != "" {
		merged.ActionPath = later.ActionPath
	}
	if later.HasTimestamp() {
		merged.CreatedAt = later.CreatedAt
	}

	if base.Read() || later.Read() {
		merged.MarkRead()
		return merged
	}

	if later.Status != types.StatusUnknown {
		merged.Status = later.Status
	}
	if later.IsRead != nil {
		v := *later.IsRead
		merged.IsRead = &v
	}

	return merged
}

// newestFirst orders by CreatedAt descending with undated entries last.
func newestFirst(a, b types.Notification) int {
	switch {
	case a.HasTimestamp() && b.HasTimestamp():
		return b.CreatedAt.Compare(a.CreatedAt)
	case a.HasTimestamp():
		return -1
	case b.HasTimestamp():
		return 1
	default:
		return 0
	}
}
