package source

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/arloliu/notisync/types"
)

// Static implements the notification API over an in-memory list of raw items.
//
// MarkAsRead and MarkAllAsRead rewrite the stored items to status READ so a
// later FetchRecent reflects the acknowledgement, like a real backend would.
type Static struct {
	mu       sync.RWMutex
	items    []json.RawMessage
	readIDs  []string
	readAlls int
	fetchErr error
}

var _ types.NotificationAPI = (*Static)(nil)

// NewStatic creates a new static source.
//
// Parameters:
//   - items: Raw JSON objects, newest first
//
// Returns:
//   - *Static: Initialized static source
//
// Example:
//
//	src := source.NewStatic([]json.RawMessage{
//	    json.RawMessage(`{"id":"1","title":"Welcome","status":"UNREAD"}`),
//	})
//	engine, err := notisync.NewEngine(&cfg, src, creds)
func NewStatic(items []json.RawMessage) *Static {
	s := &Static{}
	s.Update(items)

	return s
}

// FetchRecent returns a page of the stored items.
func (s *Static) FetchRecent(_ context.Context, offset, limit int) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.fetchErr != nil {
		return nil, s.fetchErr
	}

	if offset < 0 {
		offset = 0
	}
	if offset >= len(s.items) {
		return []json.RawMessage{}, nil
	}

	end := len(s.items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	result := make([]json.RawMessage, end-offset)
	copy(result, s.items[offset:end])

	return result, nil
}

// MarkAsRead flips the item with the given id to READ.
//
// Returns:
//   - int: 200 when found, 404 otherwise
//   - error: Always nil
func (s *Static) MarkAsRead(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readIDs = append(s.readIDs, id)

	found := false
	for i, raw := range s.items {
		if itemID(raw) == id {
			s.items[i] = markRead(raw)
			found = true
		}
	}

	if !found {
		return http.StatusNotFound, nil
	}

	return http.StatusOK, nil
}

// MarkAllAsRead flips every item to READ.
func (s *Static) MarkAllAsRead(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readAlls++
	for i, raw := range s.items {
		s.items[i] = markRead(raw)
	}

	return http.StatusOK, nil
}

// Update replaces the item list.
//
// This allows the static source to simulate new notifications appearing
// between polls.
func (s *Static) Update(items []json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make([]json.RawMessage, len(items))
	copy(s.items, items)
}

// SetFetchError makes subsequent FetchRecent calls fail with err (nil clears it).
func (s *Static) SetFetchError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetchErr = err
}

// ReadIDs returns the ids passed to MarkAsRead, in call order.
func (s *Static) ReadIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.readIDs...)
}

// ReadAllCalls returns how many times MarkAllAsRead was called.
func (s *Static) ReadAllCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.readAlls
}

func itemID(raw json.RawMessage) string {
	var item struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(raw, &item); err != nil || item.ID == nil {
		return ""
	}

	switch id := item.ID.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

func markRead(raw json.RawMessage) json.RawMessage {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}
	obj["status"] = string(types.StatusRead)
	obj["isRead"] = true

	out, err := json.Marshal(obj)
	if err != nil {
		return raw
	}

	return out
}
