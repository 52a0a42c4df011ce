// Package irt implements the three-parameter logistic (3PL) response model
// and expected-a-posteriori ability estimation over a discretized grid.
package irt

import "math"

// Posterior grid: 81 points spanning [-4, 4] under a standard normal prior.
const (
	gridMin    = -4.0
	gridMax    = 4.0
	gridPoints = 81
)

// Reported abilities are clamped to this range; estimation itself is not.
const (
	ReportMin = -3.0
	ReportMax = 3.0
)

// ItemParams holds one item's 3PL calibration: discrimination a,
// difficulty b, and guessing floor c. Valid items satisfy a > 0 and
// 0 <= c < 1; that is enforced at ingestion time.
type ItemParams struct {
	A float64
	B float64
	C float64
}

// ObservedResponse pairs an administered item's parameters with the outcome.
type ObservedResponse struct {
	Params  ItemParams
	Correct bool
}

// Ability is a posterior summary: mean ability and its standard error.
type Ability struct {
	Theta float64
	SE    float64
}

// Probability returns P(correct | theta) = c + (1-c) / (1 + exp(-a(theta-b))).
func Probability(theta float64, p ItemParams) float64 {
	return p.C + (1-p.C)/(1+math.Exp(-p.A*(theta-p.B)))
}

// Information returns the Fisher information an item contributes at theta:
//
//	I(theta) = a^2 * (P-c)^2 * (1-P) / ((1-c)^2 * P)
//
// Degenerate parameters (c = 1 or P = 0) contribute zero information.
func Information(theta float64, p ItemParams) float64 {
	den := (1 - p.C) * (1 - p.C)
	if den == 0 {
		return 0
	}
	prob := Probability(theta, p)
	if prob == 0 {
		return 0
	}
	d := prob - p.C
	return p.A * p.A * d * d * (1 - prob) / (den * prob)
}

// Estimate computes the EAP ability from the full response history.
// The posterior is recomputed from scratch on every call, so the estimate
// never depends on the order responses arrived in. With zero responses it
// returns the prior: theta 0, SE 1.
func Estimate(responses []ObservedResponse) Ability {
	if len(responses) == 0 {
		return Ability{Theta: 0, SE: 1}
	}

	step := (gridMax - gridMin) / float64(gridPoints-1)
	posterior := make([]float64, gridPoints)

	var norm, weightedSum float64
	for k := 0; k < gridPoints; k++ {
		theta := gridMin + float64(k)*step
		// Standard normal prior up to a constant; the constant cancels
		// in the normalization below.
		mass := math.Exp(-0.5 * theta * theta)
		for _, r := range responses {
			prob := Probability(theta, r.Params)
			if r.Correct {
				mass *= prob
			} else {
				mass *= 1 - prob
			}
		}
		posterior[k] = mass
		norm += mass
		weightedSum += mass * theta
	}
	if norm == 0 {
		// Likelihood underflowed everywhere; fall back to the prior.
		return Ability{Theta: 0, SE: 1}
	}

	mean := weightedSum / norm
	var variance float64
	for k := 0; k < gridPoints; k++ {
		theta := gridMin + float64(k)*step
		d := theta - mean
		variance += posterior[k] * d * d
	}
	return Ability{Theta: mean, SE: math.Sqrt(variance / norm)}
}

// Clamp bounds theta to the reporting range [-3, 3].
func Clamp(theta float64) float64 {
	if theta < ReportMin {
		return ReportMin
	}
	if theta > ReportMax {
		return ReportMax
	}
	return theta
}
