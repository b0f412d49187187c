package record

import (
	"fmt"
	"strings"
	"time"
)

// isoLayouts are tried in order by ParseISO. Upstream feeds disagree on
// fractional seconds, offsets and separators, so the list is permissive.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseEpoch converts Unix seconds to a UTC time. Zero and negative values
// are rejected; no feed legitimately reports an event at or before 1970.
func ParseEpoch(sec int64) (time.Time, error) {
	if sec <= 0 {
		return time.Time{}, fmt.Errorf("epoch seconds must be positive, got %d", sec)
	}
	return time.Unix(sec, 0).UTC(), nil
}

// ParseISO parses an ISO-8601 timestamp. A trailing "Z" and explicit offsets
// are honoured; timestamps without any zone are taken as UTC.
func ParseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range isoLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// PreferredTime resolves a record's ordering timestamp: the published time
// when present and parseable, otherwise the collected time. The zero time is
// returned only when neither is usable.
func PreferredTime(publishedAt string, collectedAt int64) time.Time {
	if publishedAt != "" {
		if t, err := ParseISO(publishedAt); err == nil {
			return t
		}
	}
	if t, err := ParseEpoch(collectedAt); err == nil {
		return t
	}
	return time.Time{}
}
