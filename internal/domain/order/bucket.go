package order

import "time"

// Bucket key formats. Day keys sort lexicographically in date order, which
// the aggregate maintainer relies on.
const (
	dayKeyFormat   = "2006-01-02"
	dayLabelFormat = "Mon 2 Jan"
)

// DayKey maps a timestamp to its day bucket in loc. A zero timestamp is
// unbucketed: the value is excluded from histograms instead of crashing
// aggregation.
func DayKey(t time.Time, loc *time.Location) (string, bool) {
	if t.IsZero() {
		return "", false
	}
	return t.In(loc).Format(dayKeyFormat), true
}

// DayLabel is the human-readable label for a day bucket.
func DayLabel(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayLabelFormat)
}

// HourKey maps a timestamp to its hour-of-day bucket (0-23) in loc.
func HourKey(t time.Time, loc *time.Location) (int, bool) {
	if t.IsZero() {
		return 0, false
	}
	return t.In(loc).Hour(), true
}
