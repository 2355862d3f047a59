package feed

import (
	"strings"
	"time"
)

// timeLayouts covers the date formats observed across the configured sources.
// Feeds in the wild disagree even within a single document, so parsing walks
// the list until one layout fits.
var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses a source-supplied timestamp. It reports false when no
// known layout matches; callers substitute "now" and log rather than drop
// the item.
func ParseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TruncateTitle bounds a title to MaxTitleLen for storage safety.
func TruncateTitle(title string) string {
	return truncate(title, MaxTitleLen)
}

// TruncateDescription bounds a description snippet to MaxDescriptionLen.
func TruncateDescription(desc string) string {
	return truncate(desc, MaxDescriptionLen)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
