package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectChangepoints_InsufficientData(t *testing.T) {
	_, err := DetectChangepoints([]float64{1, 2, 3}, DefaultChangepointConfig())
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestDetectChangepoints_InvalidData(t *testing.T) {
	series := []float64{1, 2, math.NaN(), 4, 5, 6, 7, 8, 9, 10}
	_, err := DetectChangepoints(series, DefaultChangepointConfig())
	assert.ErrorIs(t, err, ErrInvalidData)

	series2 := []float64{1, 2, math.Inf(1), 4, 5, 6, 7, 8, 9, 10}
	_, err2 := DetectChangepoints(series2, DefaultChangepointConfig())
	assert.ErrorIs(t, err2, ErrInvalidData)
}

func TestDetectChangepoints_DetectsMeanShift(t *testing.T) {
	var series []float64
	for i := 0; i < 10; i++ {
		series = append(series, 1.0)
	}
	for i := 0; i < 10; i++ {
		series = append(series, 10.0)
	}
	cfg := DefaultChangepointConfig()
	cfg.MinProbability = 0.3
	cps, err := DetectChangepoints(series, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, cps)
	found := false
	for _, c := range cps {
		if c.Index >= 8 && c.Index <= 12 {
			found = true
			assert.Equal(t, DirectionIncrease, c.Direction)
			assert.Greater(t, c.Magnitude, 0.0)
		}
	}
	assert.True(t, found, "expected a changepoint near the shift boundary")
}

func TestDetectChangepoints_NoShiftFlatSeries(t *testing.T) {
	series := make([]float64, 20)
	for i := range series {
		series[i] = 5.0
	}
	cps, err := DetectChangepoints(series, DefaultChangepointConfig())
	require.NoError(t, err)
	assert.Empty(t, cps)
}

func TestEnforceMinDistance_KeepsHighestProbabilityWithinWindow(t *testing.T) {
	candidates := []Changepoint{
		{Index: 10, Probability: 0.6},
		{Index: 11, Probability: 0.9},
		{Index: 20, Probability: 0.5},
	}
	out := enforceMinDistance(candidates, 5)
	require.Len(t, out, 2)
	assert.Equal(t, 11, out[0].Index)
	assert.Equal(t, 20, out[1].Index)
}
