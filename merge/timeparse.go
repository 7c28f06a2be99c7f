package merge

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
// 1e11 seconds is in the year 5138, so anything larger is treated as milliseconds.
const epochMillisThreshold = 1e11

// zonedLayouts carry their own offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
	time.RFC1123Z,
	time.RFC1123,
}

// localLayouts have no offset and are interpreted in the decoder's location.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// parseTimestamp normalizes the many shapes a backend may use for a timestamp.
//
// Accepted shapes:
//   - RFC3339 / RFC1123 strings with an offset
//   - ISO-8601 strings without an offset (interpreted in loc)
//   - Epoch seconds or milliseconds, as numbers or numeric strings
//   - Arrays of [year, month, day, hour, minute, second, nanos] (trailing parts optional)
//
// Returns the zero time when the value is missing or unparsable.
func parseTimestamp(v any, loc *time.Location) time.Time {
	switch val := v.(type) {
	case string:
		return parseTimeString(val, loc)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return time.Time{}
		}

		return fromEpoch(f)
	case float64:
		return fromEpoch(val)
	case int64:
		return fromEpoch(float64(val))
	case int:
		return fromEpoch(float64(val))
	case []any:
		return fromParts(val, loc)
	case time.Time:
		return val
	default:
		return time.Time{}
	}
}

func parseTimeString(s string, loc *time.Location) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}

	return time.Time{}
}

func fromEpoch(f float64) time.Time {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}
	}

	if f >= epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC()
	}

	sec, frac := math.Modf(f)

	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func fromParts(parts []any, loc *time.Location) time.Time {
	if len(parts) < 3 {
		return time.Time{}
	}

	nums := make([]int, 7)
	for i := 0; i < len(parts) && i < len(nums); i++ {
		n, ok := toInt(parts[i])
		if !ok {
			return time.Time{}
		}
		nums[i] = n
	}

	if nums[1] < 1 || nums[1] > 12 || nums[2] < 1 || nums[2] > 31 {
		return time.Time{}
	}

	return time.Date(nums[0], time.Month(nums[1]), nums[2], nums[3], nums[4], nums[5], nums[6], loc)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}

		return int(i), true
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
