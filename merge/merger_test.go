package merge

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/notisync/types"
)

var (
	t1 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t2 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
)

func note(key string, created time.Time, status types.ReadStatus) types.Notification {
	return types.Notification{Key: key, ID: key, Title: "title " + key, CreatedAt: created, Status: status}
}

func keys(view []types.Notification) []string {
	out := make([]string, len(view))
	for i, n := range view {
		out[i] = n.Key
	}

	return out
}

func TestMerge_Dedup(t *testing.T) {
	snapshot := []types.Notification{note("7", t1, types.StatusUnread)}
	pushed := []types.Notification{note("7", t1, types.StatusUnread)}

	view := Merge(snapshot, pushed, nil)
	require.Len(t, view, 1)
	require.Equal(t, "7", view[0].Key)
}

func TestMerge_StickyRead(t *testing.T) {
	t.Run("snapshot read, push unread", func(t *testing.T) {
		view := Merge(
			[]types.Notification{note("7", t1, types.StatusRead)},
			[]types.Notification{note("7", t1, types.StatusUnread)},
			nil,
		)
		require.Len(t, view, 1)
		require.True(t, view[0].Read())
	})

	t.Run("snapshot unread, push read", func(t *testing.T) {
		view := Merge(
			[]types.Notification{note("7", t1, types.StatusUnread)},
			[]types.Notification{note("7", t1, types.StatusRead)},
			nil,
		)
		require.True(t, view[0].Read())
	})

	t.Run("legacy isRead flag", func(t *testing.T) {
		read := true
		legacy := types.Notification{Key: "7", IsRead: &read}
		view := Merge([]types.Notification{legacy}, []types.Notification{note("7", t1, types.StatusUnknown)}, nil)
		require.True(t, view[0].Read())
	})

	t.Run("read keys memory", func(t *testing.T) {
		view := Merge(nil, []types.Notification{note("7", t1, types.StatusUnread)}, map[string]struct{}{"7": {}})
		require.True(t, view[0].Read())
	})
}

func TestMerge_OverlayFields(t *testing.T) {
	base := types.Notification{Key: "k", Title: "old", Message: "body", CreatedAt: t1}
	later := types.Notification{Key: "k", Title: "new", ActionPath: "/tickets/3"}

	view := Merge([]types.Notification{base}, []types.Notification{later}, nil)
	require.Len(t, view, 1)
	require.Equal(t, "new", view[0].Title)
	require.Equal(t, "body", view[0].Message)
	require.Equal(t, "/tickets/3", view[0].ActionPath)
	require.Equal(t, t1, view[0].CreatedAt)
}

func TestMerge_SortNewestFirstUndatedLast(t *testing.T) {
	snapshot := []types.Notification{
		note("a", t1, types.StatusUnread),
		note("undated", time.Time{}, types.StatusUnread),
		note("b", t2, types.StatusUnread),
	}

	view := Merge(snapshot, nil, nil)
	require.Equal(t, []string{"b", "a", "undated"}, keys(view))
}

func TestMerge_SortIsStableForEqualTimes(t *testing.T) {
	snapshot := []types.Notification{
		note("first", t1, types.StatusUnread),
		note("second", t1, types.StatusUnread),
		note("u1", time.Time{}, types.StatusUnread),
		note("u2", time.Time{}, types.StatusUnread),
	}

	require.Equal(t, []string{"first", "second", "u1", "u2"}, keys(Merge(snapshot, nil, nil)))
}

func TestMerge_DoesNotAliasInputs(t *testing.T) {
	unread := false
	in := types.Notification{Key: "k", IsRead: &unread}

	view := Merge([]types.Notification{in}, nil, nil)
	view[0].MarkRead()

	require.False(t, *in.IsRead)
}

func TestMerger_NoResurrection(t *testing.T) {
	m := NewMerger(10)
	m.ReplaceSnapshot([]types.Notification{note("7", t1, types.StatusUnread)})
	require.Equal(t, 1, m.UnreadCount())

	_, ok := m.MarkRead("7")
	require.True(t, ok)
	require.Zero(t, m.UnreadCount())

	// A stale push of the same item must not flip it back.
	m.Push(note("7", t1, types.StatusUnread))
	require.Zero(t, m.UnreadCount())

	// Neither may a stale snapshot.
	m.ReplaceSnapshot([]types.Notification{note("7", t1, types.StatusUnread)})
	require.Zero(t, m.UnreadCount())
	require.True(t, m.View()[0].Read())
}

func TestMerger_ReadMemoryPruned(t *testing.T) {
	m := NewMerger(10)
	m.ReplaceSnapshot([]types.Notification{note("7", t1, types.StatusUnread)})
	m.MarkRead("7")

	// The item leaves both collections, so its read memory is dropped.
	m.ReplaceSnapshot(nil)
	require.Empty(t, m.View())

	m.ReplaceSnapshot([]types.Notification{note("7", t1, types.StatusUnread)})
	require.Equal(t, 1, m.UnreadCount())
}

func TestMerger_MarkReadByID(t *testing.T) {
	m := NewMerger(10)
	m.Push(types.Notification{Key: "~x|2026", ID: "", Title: "x", CreatedAt: t1})
	m.Push(types.Notification{Key: "42", ID: "42", Title: "y", CreatedAt: t2})

	entry, ok := m.MarkRead("42")
	require.True(t, ok)
	require.True(t, entry.Read())
	require.Equal(t, 1, m.UnreadCount())

	_, ok = m.MarkRead("missing")
	require.False(t, ok)
}

func TestMerger_MarkAllRead(t *testing.T) {
	m := NewMerger(10)
	m.ReplaceSnapshot([]types.Notification{note("1", t1, types.StatusUnread), note("2", t2, types.StatusRead)})
	m.Push(note("3", t2.Add(time.Minute), types.StatusUnread))

	require.Equal(t, 2, m.MarkAllRead())
	require.Zero(t, m.UnreadCount())
	require.Len(t, m.View(), 3)
	for _, n := range m.View() {
		require.True(t, n.Read(), n.Key)
	}
}

func TestMerger_PushCapacity(t *testing.T) {
	m := NewMerger(3)
	for i := range 5 {
		m.Push(note(fmt.Sprintf("p%d", i), t1.Add(time.Duration(i)*time.Minute), types.StatusUnread))
	}

	require.Equal(t, 3, m.PushLen())
	require.Equal(t, uint64(5), m.PushTotal())
	require.Equal(t, []string{"p4", "p3", "p2"}, keys(m.View()))
}

func TestMerger_SnapshotReplacedWholesale(t *testing.T) {
	m := NewMerger(10)
	m.ReplaceSnapshot([]types.Notification{note("1", t1, types.StatusUnread), note("2", t2, types.StatusUnread)})
	m.ReplaceSnapshot([]types.Notification{note("2", t2, types.StatusUnread)})

	require.Equal(t, 1, m.SnapshotLen())
	require.Equal(t, []string{"2"}, keys(m.View()))
}

func TestMerger_Reset(t *testing.T) {
	m := NewMerger(10)
	m.ReplaceSnapshot([]types.Notification{note("1", t1, types.StatusUnread)})
	m.Push(note("2", t2, types.StatusUnread))
	_, ok := m.MarkRead("1")
	require.True(t, ok)

	m.Reset()
	require.Empty(t, m.View())
	require.Zero(t, m.UnreadCount())
	require.Zero(t, m.PushTotal())
	require.Zero(t, m.PushLen())
	require.Zero(t, m.SnapshotLen())

	// Read memory is gone too.
	m.ReplaceSnapshot([]types.Notification{note("1", t1, types.StatusUnread)})
	require.Equal(t, 1, m.UnreadCount())
}

func TestMerger_Lookup(t *testing.T) {
	m := NewMerger(0)
	m.Push(note("9", t1, types.StatusUnread))

	n, ok := m.Lookup("9")
	require.True(t, ok)
	require.Equal(t, "title 9", n.Title)

	_, ok = m.Lookup("nope")
	require.False(t, ok)
}
