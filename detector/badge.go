package detector

import "strconv"

// maxBadgeCount is the largest count rendered literally.
const maxBadgeCount = 99

// BadgeText renders an unread count for a badge: empty for zero, "99+" above 99.
func BadgeText(unread int) string {
	switch {
	case unread <= 0:
		return ""
	case unread > maxBadgeCount:
		return strconv.Itoa(maxBadgeCount) + "+"
	default:
		return strconv.Itoa(unread)
	}
}
