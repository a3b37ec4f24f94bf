// Package analytics implements the changepoint detector and DBSCAN-style
// anomaly clustering of SPEC_FULL.md §4.6.
//
// Grounded structurally on internal/reinforcement/thompson.go's shape: a
// small, config-driven, side-effect-free statistical package with a single
// exported entry point and an internal RNG where randomness is needed.
// Algorithmic idiom for a periodic-sweep statistical consolidator operating
// on rolling series is further informed by the pack's standalone
// consolidation reference material (read for idiom only, not transplanted).
package analytics

import (
	"errors"
	"math"
)

// ErrInsufficientData is returned when a series is shorter than
// MinObservations.
var ErrInsufficientData = errors.New("analytics: insufficient data")

// ErrInvalidData is returned when a series contains NaN or Inf.
var ErrInvalidData = errors.New("analytics: invalid data (NaN or Inf)")

// ChangeType classifies what changed at a changepoint.
type ChangeType string

const (
	ChangeMeanShift      ChangeType = "MeanShift"
	ChangeVarianceChange ChangeType = "VarianceChange"
	ChangeMixed          ChangeType = "MixedChange"
	ChangeUnknown        ChangeType = "Unknown"
)

// Direction classifies whether the mean moved up, down, or is ambiguous.
type Direction string

const (
	DirectionIncrease Direction = "Increase"
	DirectionDecrease Direction = "Decrease"
	DirectionMixed    Direction = "Mixed"
)

// Changepoint is one detected shift in a 1-D series.
type Changepoint struct {
	Index                int
	Probability          float64
	ConfidenceInterval    [2]float64
	ChangeType            ChangeType
	Magnitude             float64 // Cohen's d
	Direction             Direction
}

// ChangepointConfig tunes detection sensitivity.
type ChangepointConfig struct {
	MinProbability    float64 // [0,1]
	MinDistance       int     // >= 1
	SignificanceLevel float64 // [0,1]
	MinObservations   int     // >= 5
	AdaptiveThreshold bool
}

func DefaultChangepointConfig() ChangepointConfig {
	return ChangepointConfig{
		MinProbability:    0.5,
		MinDistance:       3,
		SignificanceLevel: 0.05,
		MinObservations:   5,
		AdaptiveThreshold: true,
	}
}

const windowWidth = 5

// DetectChangepoints scans series for significant mean/variance shifts,
// comparing windows of width 5 flanking each candidate index, filtering by
// min_probability and enforcing min_distance between accepted indices.
func DetectChangepoints(series []float64, cfg ChangepointConfig) ([]Changepoint, error) {
	minObs := cfg.MinObservations
	if minObs <= 0 {
		minObs = 5
	}
	if len(series) < minObs {
		return nil, ErrInsufficientData
	}
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, ErrInvalidData
		}
	}

	minDistance := cfg.MinDistance
	if minDistance < 1 {
		minDistance = 1
	}
	minProb := cfg.MinProbability

	var candidates []Changepoint
	for i := windowWidth; i < len(series)-windowWidth; i++ {
		left := series[i-windowWidth : i]
		right := series[i : i+windowWidth]

		lMean, lVar := meanVar(left)
		rMean, rVar := meanVar(right)

		pooled := math.Sqrt((lVar + rVar) / 2)
		var d float64
		switch {
		case pooled > 0:
			d = (rMean - lMean) / pooled
		case rMean > lMean:
			d = 10 // zero-variance windows with a mean shift: treat as maximally significant
		case rMean < lMean:
			d = -10
		}
		magnitude := math.Abs(d)

		prob := probabilityFromMagnitude(magnitude, cfg.AdaptiveThreshold)
		if prob < minProb {
			continue
		}

		changeType := classifyChange(lVar, rVar, magnitude)
		direction := DirectionMixed
		switch {
		case rMean > lMean && changeType != ChangeVarianceChange:
			direction = DirectionIncrease
		case rMean < lMean && changeType != ChangeVarianceChange:
			direction = DirectionDecrease
		}

		ciWidth := 1.96 * pooled / math.Sqrt(float64(windowWidth))
		candidates = append(candidates, Changepoint{
			Index:              i,
			Probability:        prob,
			ConfidenceInterval: [2]float64{rMean - ciWidth, rMean + ciWidth},
			ChangeType:         changeType,
			Magnitude:          magnitude,
			Direction:          direction,
		})
	}

	return enforceMinDistance(candidates, minDistance), nil
}

func meanVar(xs []float64) (mean, variance float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / n
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	variance = sq / n
	return mean, variance
}

// probabilityFromMagnitude maps a Cohen's d magnitude to a [0,1] detection
// probability via a logistic curve; adaptive mode steepens the curve so
// marginal shifts are penalized harder.
func probabilityFromMagnitude(d float64, adaptive bool) float64 {
	k := 1.5
	if adaptive {
		k = 2.5
	}
	return 1 / (1 + math.Exp(-k*(d-0.5)))
}

func classifyChange(lVar, rVar, magnitude float64) ChangeType {
	varRatio := 1.0
	if lVar > 0 {
		varRatio = rVar / lVar
	} else if rVar > 0 {
		varRatio = math.Inf(1)
	}
	varShift := varRatio > 1.5 || varRatio < 0.67
	meanShift := magnitude > 0.5

	switch {
	case meanShift && varShift:
		return ChangeMixed
	case meanShift:
		return ChangeMeanShift
	case varShift:
		return ChangeVarianceChange
	default:
		return ChangeUnknown
	}
}

// enforceMinDistance greedily keeps the highest-probability candidate within
// each min_distance window, scanning left to right.
func enforceMinDistance(candidates []Changepoint, minDistance int) []Changepoint {
	var out []Changepoint
	for _, c := range candidates {
		if len(out) == 0 || c.Index-out[len(out)-1].Index >= minDistance {
			out = append(out, c)
			continue
		}
		if c.Probability > out[len(out)-1].Probability {
			out[len(out)-1] = c
		}
	}
	return out
}
