package volsignal

import (
	"fmt"
	"sort"
)

// Point is one (days-to-expiry, ATM implied volatility) observation.
type Point struct {
	Days int     `json:"days"`
	IV   float64 `json:"iv"`
}

// TermStructure is a piecewise-linear interpolant over ATM IV by
// days-to-expiry. Queries outside the observed range clamp to the
// boundary IV rather than extrapolating.
type TermStructure struct {
	points []Point
}

// NewTermStructure builds the interpolant from unsorted points.
// Duplicate days are not expected; last one wins.
func NewTermStructure(points []Point) (*TermStructure, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("term structure needs at least one point")
	}

	byDay := make(map[int]float64, len(points))
	for _, p := range points {
		if p.Days < 0 {
			return nil, fmt.Errorf("negative days to expiry: %d", p.Days)
		}
		byDay[p.Days] = p.IV
	}

	dedup := make([]Point, 0, len(byDay))
	for days, iv := range byDay {
		dedup = append(dedup, Point{Days: days, IV: iv})
	}
	sort.Slice(dedup, func(i, j int) bool { return dedup[i].Days < dedup[j].Days })

	return &TermStructure{points: dedup}, nil
}

// IV returns the interpolated ATM implied volatility at the given
// days-to-expiry, clamped to the nearest boundary outside [min, max].
func (ts *TermStructure) IV(days float64) float64 {
	first := ts.points[0]
	last := ts.points[len(ts.points)-1]

	if days <= float64(first.Days) {
		return first.IV
	}
	if days >= float64(last.Days) {
		return last.IV
	}

	// Find the bracketing pair.
	idx := sort.Search(len(ts.points), func(i int) bool {
		return float64(ts.points[i].Days) >= days
	})
	hi := ts.points[idx]
	lo := ts.points[idx-1]

	if hi.Days == lo.Days {
		return hi.IV
	}
	frac := (days - float64(lo.Days)) / float64(hi.Days-lo.Days)
	return lo.IV + frac*(hi.IV-lo.IV)
}

// MinDays returns the smallest observed days-to-expiry.
func (ts *TermStructure) MinDays() int {
	return ts.points[0].Days
}

// MaxDays returns the largest observed days-to-expiry.
func (ts *TermStructure) MaxDays() int {
	return ts.points[len(ts.points)-1].Days
}
