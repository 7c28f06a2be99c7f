package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestNotification_Read(t *testing.T) {
	tests := []struct {
		name   string
		status ReadStatus
		isRead *bool
		want   bool
	}{
		{"no fields is unread", StatusUnknown, nil, false},
		{"isRead true alone", StatusUnknown, boolPtr(true), true},
		{"isRead false alone", StatusUnknown, boolPtr(false), false},
		{"status READ wins over isRead false", StatusRead, boolPtr(false), true},
		{"status UNREAD wins over isRead true", StatusUnread, boolPtr(true), false},
		{"status READ alone", StatusRead, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Notification{Status: tt.status, IsRead: tt.isRead}
			require.Equal(t, tt.want, n.Read())
		})
	}
}

func TestNotification_MarkRead(t *testing.T) {
	n := Notification{Status: StatusUnread, IsRead: boolPtr(false)}
	n.MarkRead()

	require.True(t, n.Read())
	require.Equal(t, StatusRead, n.Status)
	require.NotNil(t, n.IsRead)
	require.True(t, *n.IsRead)
}

func TestNotification_Clone(t *testing.T) {
	orig := Notification{Key: "42", IsRead: boolPtr(false), CreatedAt: time.Unix(10, 0)}
	cp := orig.Clone()
	*cp.IsRead = true

	require.False(t, *orig.IsRead, "clone must not share IsRead pointer")
	require.True(t, cp.HasTimestamp())
	require.False(t, Notification{}.HasTimestamp())
}
