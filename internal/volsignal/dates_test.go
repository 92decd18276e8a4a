package volsignal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFilterDates(t *testing.T) {
	today := day(2026, 8, 28)

	tests := []struct {
		name    string
		dates   []time.Time
		want    []time.Time
		wantErr error
	}{
		{
			name: "prefix ends at first date past the 45-day horizon",
			dates: []time.Time{
				day(2026, 9, 4),
				day(2026, 9, 18),
				day(2026, 10, 16), // today+49, first >= today+45
				day(2026, 11, 20), // beyond, dropped
			},
			want: []time.Time{day(2026, 9, 4), day(2026, 9, 18), day(2026, 10, 16)},
		},
		{
			name: "unsorted input is sorted first",
			dates: []time.Time{
				day(2026, 10, 16),
				day(2026, 9, 4),
			},
			want: []time.Time{day(2026, 9, 4), day(2026, 10, 16)},
		},
		{
			name: "same-day expiry at the front is dropped",
			dates: []time.Time{
				day(2026, 8, 28), // today
				day(2026, 9, 18),
				day(2026, 10, 16),
			},
			want: []time.Time{day(2026, 9, 18), day(2026, 10, 16)},
		},
		{
			name: "no date reaches the horizon",
			dates: []time.Time{
				day(2026, 9, 4),
				day(2026, 9, 18),
			},
			wantErr: ErrInsufficientData,
		},
		{
			name:    "empty input",
			dates:   nil,
			wantErr: ErrInsufficientData,
		},
		{
			name: "boundary date exactly 45 days out is kept",
			dates: []time.Time{
				day(2026, 9, 4),
				day(2026, 10, 12), // today+45 exactly
			},
			want: []time.Time{day(2026, 9, 4), day(2026, 10, 12)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FilterDates(tt.dates, today)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 45, DaysBetween(day(2026, 8, 28), day(2026, 10, 12)))
	assert.Equal(t, 0, DaysBetween(day(2026, 8, 28), day(2026, 8, 28)))
	// Time-of-day is ignored.
	assert.Equal(t, 1, DaysBetween(
		time.Date(2026, 8, 28, 23, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 29, 1, 0, 0, 0, time.UTC),
	))
}
