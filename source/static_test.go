package source

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func raws(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, s := range items {
		out[i] = json.RawMessage(s)
	}

	return out
}

func TestStatic_FetchRecent(t *testing.T) {
	src := NewStatic(raws(`{"id":"1"}`, `{"id":"2"}`, `{"id":"3"}`))

	t.Run("returns all items", func(t *testing.T) {
		items, err := src.FetchRecent(t.Context(), 0, 50)
		require.NoError(t, err)
		require.Len(t, items, 3)
	})

	t.Run("pages with offset and limit", func(t *testing.T) {
		items, err := src.FetchRecent(t.Context(), 1, 1)
		require.NoError(t, err)
		require.Equal(t, raws(`{"id":"2"}`), items)
	})

	t.Run("offset past end", func(t *testing.T) {
		items, err := src.FetchRecent(t.Context(), 10, 5)
		require.NoError(t, err)
		require.Empty(t, items)
	})

	t.Run("returns a copy", func(t *testing.T) {
		items, err := src.FetchRecent(t.Context(), 0, 0)
		require.NoError(t, err)
		items[0] = json.RawMessage(`{}`)

		again, err := src.FetchRecent(t.Context(), 0, 1)
		require.NoError(t, err)
		require.JSONEq(t, `{"id":"1"}`, string(again[0]))
	})
}

func TestStatic_MarkAsRead(t *testing.T) {
	src := NewStatic(raws(`{"id":"1","status":"UNREAD"}`, `{"id":2,"isRead":false}`))

	status, err := src.MarkAsRead(t.Context(), "1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	status, err = src.MarkAsRead(t.Context(), "2")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	status, err = src.MarkAsRead(t.Context(), "missing")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, status)

	items, err := src.FetchRecent(t.Context(), 0, 0)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"1","status":"READ","isRead":true}`, string(items[0]))
	require.JSONEq(t, `{"id":2,"status":"READ","isRead":true}`, string(items[1]))
	require.Equal(t, []string{"1", "2", "missing"}, src.ReadIDs())
}

func TestStatic_MarkAllAsRead(t *testing.T) {
	src := NewStatic(raws(`{"id":"1"}`, `not json`))

	status, err := src.MarkAllAsRead(t.Context())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 1, src.ReadAllCalls())

	items, err := src.FetchRecent(t.Context(), 0, 0)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"1","status":"READ","isRead":true}`, string(items[0]))
	require.Equal(t, "not json", string(items[1]))
}

func TestStatic_UpdateAndFetchError(t *testing.T) {
	src := NewStatic(nil)

	src.Update(raws(`{"id":"9"}`))
	items, err := src.FetchRecent(t.Context(), 0, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)

	boom := errors.New("backend down")
	src.SetFetchError(boom)
	_, err = src.FetchRecent(t.Context(), 0, 10)
	require.ErrorIs(t, err, boom)

	src.SetFetchError(nil)
	_, err = src.FetchRecent(t.Context(), 0, 10)
	require.NoError(t, err)
}
