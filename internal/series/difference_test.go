package series

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDifference_FirstOrder(t *testing.T) {
	s := seriesOf([]float64{10, 13, 11, 18})
	d, err := Difference(s, 1)
	require.NoError(t, err)

	assert.Equal(t, 3, d.Len())
	assert.Equal(t, []float64{3, -2, 7}, rawValues(d))
	assert.Equal(t, s.Entries[0].Window, d.Entries[0].Window)
}

func TestDifference_SeasonalPeriod(t *testing.T) {
	s := seriesOf([]float64{1, 2, 3, 5, 7, 9})
	d, err := Difference(s, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, d.Len())
	assert.Equal(t, []float64{4, 5, 6}, rawValues(d))
}

func TestDifference_GapPropagates(t *testing.T) {
	s := seriesOf([]float64{10, 0, 14, 20}, 1)
	d, err := Difference(s, 1)
	require.NoError(t, err)

	require.Equal(t, 3, d.Len())
	assert.True(t, d.Entries[0].Gap, "right side is a gap")
	assert.True(t, d.Entries[1].Gap, "left side is a gap")
	assert.False(t, d.Entries[2].Gap)
	assert.Equal(t, 6.0, d.Entries[2].Value)
}

func TestDifference_Errors(t *testing.T) {
	s := seriesOf([]float64{1, 2})

	_, err := Difference(s, 0)
	assert.ErrorContains(t, err, "period")

	_, err = Difference(s, 2)
	assert.ErrorContains(t, err, "too short")
}
