package merge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/arloliu/notisync/internal/hash"
	"github.com/arloliu/notisync/types"
)

// Field-name variants accepted for each canonical field, in priority order.
var (
	idFields        = []string{"id", "notificationId", "notification_id", "notiId", "noti_id"}
	titleFields     = []string{"title", "subject", "heading"}
	messageFields   = []string{"message", "content", "body", "text"}
	createdAtFields = []string{"createdAt", "created_at", "createdDate", "created_date", "created", "timestamp", "regDate"}
	statusFields    = []string{"status", "readStatus", "read_status"}
	isReadFields    = []string{"isRead", "is_read", "read"}
	actionFields    = []string{"actionPath", "action_path", "link", "url", "path"}
	envelopeFields  = []string{"payload", "data", "notification"}
)

// maxEnvelopeDepth bounds envelope unwrapping.
const maxEnvelopeDepth = 3

// Decoder turns raw payloads into canonical notifications.
//
// Decoding never fails: missing fields get defaults, unparsable timestamps become
// the zero time, and non-JSON payloads become a notification whose message is the
// raw text. Every decoded notification carries an identity key.
type Decoder struct {
	loc    *time.Location
	bucket time.Duration
	now    func() time.Time
}

// NewDecoder creates a decoder.
//
// Parameters:
//   - loc: Location used for timestamps without an offset (UTC if nil)
//   - identityBucket: Width of the receipt-time bucket folded into fallback keys
//     (0 drops the time component)
//
// Returns:
//   - *Decoder: Ready-to-use decoder
func NewDecoder(loc *time.Location, identityBucket time.Duration) *Decoder {
	if loc == nil {
		loc = time.UTC
	}

	return &Decoder{loc: loc, bucket: identityBucket, now: time.Now}
}

// Decode parses a payload.
//
// Returns:
//   - types.Notification: Decoded notification with Key set
//   - bool: true if the payload was structured JSON, false if it fell back to raw text
func (d *Decoder) Decode(data []byte) (types.Notification, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return d.DecodeRaw(string(data)), false
	}

	return d.DecodeValue(v), true
}

// DecodeValue maps an already-decoded JSON value onto a notification. Objects go
// through DecodeFields; strings and other scalars are treated as raw text.
func (d *Decoder) DecodeValue(v any) types.Notification {
	switch val := v.(type) {
	case map[string]any:
		return d.DecodeFields(val)
	case string:
		return d.DecodeRaw(val)
	case nil:
		return d.DecodeRaw("")
	default:
		return d.DecodeRaw(fmt.Sprint(val))
	}
}

// DecodeFields maps a decoded JSON object onto a notification.
func (d *Decoder) DecodeFields(m map[string]any) types.Notification {
	m = unwrapEnvelope(m)

	n := types.Notification{
		ID:         firstString(m, idFields),
		Title:      firstString(m, titleFields),
		Message:    firstString(m, messageFields),
		ActionPath: firstString(m, actionFields),
	}

	if v, ok := first(m, createdAtFields); ok {
		n.CreatedAt = parseTimestamp(v, d.loc)
	}

	if v, ok := first(m, statusFields); ok {
		n.Status = parseStatus(v)
	}

	if v, ok := first(m, isReadFields); ok {
		if b, ok := parseBool(v); ok {
			n.IsRead = &b
		}
	}

	n.Key = d.KeyFor(n)

	return n
}

// DecodeRaw wraps an unstructured payload so it is delivered instead of dropped.
func (d *Decoder) DecodeRaw(text string) types.Notification {
	n := types.Notification{Message: strings.TrimSpace(text)}
	n.Key = d.KeyFor(n)

	return n
}

// KeyFor derives the identity key of a notification.
//
// Priority:
//  1. The explicit ID
//  2. Title (or message when untitled) combined with CreatedAt
//  3. A hash of title, message and the receipt time truncated to the identity bucket
//
// The third form keeps repeated polls of the same keyless item idempotent within
// a bucket, unlike keying on the wall clock. It is only stable within one
// bucket: once the bucket rolls over, the same item decodes to a new key, so a
// local-only READ mark on it is forgotten and the item shows as UNREAD again.
// A zero identity bucket drops the time component and makes every keyless item
// with the same title and message collapse into one entry instead.
func (d *Decoder) KeyFor(n types.Notification) string {
	if n.ID != "" {
		return n.ID
	}

	label := n.Title
	if label == "" {
		label = n.Message
	}

	if n.HasTimestamp() {
		return "~" + label + "|" + n.CreatedAt.UTC().Format(time.RFC3339Nano)
	}

	return hash.Key(hash.Fingerprint(0, n.Title, n.Message, hash.Bucket(d.now(), d.bucket)))
}

// unwrapEnvelope descends into {"payload": {...}} style wrappers when the outer
// object carries none of the notification fields itself.
func unwrapEnvelope(m map[string]any) map[string]any {
	for range maxEnvelopeDepth {
		if hasAny(m, idFields) || hasAny(m, titleFields) || hasAny(m, messageFields) {
			return m
		}

		inner, ok := firstObject(m, envelopeFields)
		if !ok {
			return m
		}
		m = inner
	}

	return m
}

func first(m map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}

	return nil, false
}

func hasAny(m map[string]any, keys []string) bool {
	_, ok := first(m, keys)
	return ok
}

func firstObject(m map[string]any, keys []string) (map[string]any, bool) {
	for _, k := range keys {
		if inner, ok := m[k].(map[string]any); ok {
			return inner, true
		}
	}

	return nil, false
}

func firstString(m map[string]any, keys []string) string {
	v, ok := first(m, keys)
	if !ok {
		return ""
	}

	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func parseStatus(v any) types.ReadStatus {
	s, ok := v.(string)
	if !ok {
		return types.StatusUnknown
	}

	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(types.StatusRead):
		return types.StatusRead
	case string(types.StatusUnread):
		return types.StatusUnread
	default:
		return types.StatusUnknown
	}
}

func parseBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case json.Number:
		return val.String() != "0", true
	case float64:
		return val != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "y", "yes", "1":
			return true, true
		case "false", "n", "no", "0":
			return false, true
		}
	}

	return false, false
}
