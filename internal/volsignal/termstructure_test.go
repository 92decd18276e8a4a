package volsignal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTermStructureInterpolation(t *testing.T) {
	ts, err := NewTermStructure([]Point{
		{Days: 30, IV: 0.40},
		{Days: 7, IV: 0.60},
		{Days: 60, IV: 0.35},
	})
	require.NoError(t, err)

	// Known days return the exact IV.
	assert.InDelta(t, 0.60, ts.IV(7), 1e-12)
	assert.InDelta(t, 0.40, ts.IV(30), 1e-12)
	assert.InDelta(t, 0.35, ts.IV(60), 1e-12)

	// Linear between points.
	assert.InDelta(t, 0.50, ts.IV(18.5), 1e-12)
	assert.InDelta(t, 0.375, ts.IV(45), 1e-12)

	// Below min and above max clamp to the boundary IV.
	assert.InDelta(t, 0.60, ts.IV(0), 1e-12)
	assert.InDelta(t, 0.60, ts.IV(3), 1e-12)
	assert.InDelta(t, 0.35, ts.IV(90), 1e-12)

	assert.Equal(t, 7, ts.MinDays())
	assert.Equal(t, 60, ts.MaxDays())
}

func TestTermStructureDuplicateDayLastWins(t *testing.T) {
	ts, err := NewTermStructure([]Point{
		{Days: 10, IV: 0.50},
		{Days: 10, IV: 0.55},
		{Days: 40, IV: 0.45},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.55, ts.IV(10), 1e-12)
}

func TestTermStructureRejectsEmpty(t *testing.T) {
	_, err := NewTermStructure(nil)
	require.Error(t, err)
}

func TestTermStructureRejectsNegativeDays(t *testing.T) {
	_, err := NewTermStructure([]Point{{Days: -1, IV: 0.5}})
	require.Error(t, err)
}

func TestTermStructureSinglePoint(t *testing.T) {
	ts, err := NewTermStructure([]Point{{Days: 20, IV: 0.42}})
	require.NoError(t, err)
	assert.InDelta(t, 0.42, ts.IV(0), 1e-12)
	assert.InDelta(t, 0.42, ts.IV(20), 1e-12)
	assert.InDelta(t, 0.42, ts.IV(100), 1e-12)
}
