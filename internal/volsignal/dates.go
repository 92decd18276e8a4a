package volsignal

import (
	"errors"
	"sort"
	"time"
)

// ErrInsufficientData means a ticker's option data cannot support the
// signal: no expiration reaches the 45-day horizon, or a required chain
// is unusable. Per-ticker; the batch continues without it.
var ErrInsufficientData = errors.New("insufficient option data")

// horizonDays is how far out the term structure must reach for the slope
// to be meaningful.
const horizonDays = 45

// FilterDates sorts the expiration dates ascending and keeps the prefix
// ending at the first date at least 45 calendar days past today. A
// same-day expiry at the front is dropped. Returns ErrInsufficientData
// when no date reaches the horizon.
func FilterDates(dates []time.Time, today time.Time) ([]time.Time, error) {
	today = dateOnly(today)
	cutoff := today.AddDate(0, 0, horizonDays)

	sorted := make([]time.Time, len(dates))
	for i, d := range dates {
		sorted[i] = dateOnly(d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	for i, d := range sorted {
		if !d.Before(cutoff) {
			kept := sorted[:i+1]
			if len(kept) > 0 && kept[0].Equal(today) {
				kept = kept[1:]
			}
			return kept, nil
		}
	}

	return nil, ErrInsufficientData
}

// DaysBetween counts whole calendar days from 'from' to 'to'.
func DaysBetween(from, to time.Time) int {
	return int(dateOnly(to).Sub(dateOnly(from)).Hours() / 24)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
