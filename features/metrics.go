package features

import "math"

// Metrics are behavioral scores on a 0-100 scale, higher is better.
type Metrics struct {
	EyeContact    float64 `json:"eyeContact"`
	HeadStability float64 `json:"headMovement"`
	Posture       float64 `json:"posture"`
	Confidence    float64 `json:"confidence"`
}

// Derive maps a window onto behavioral scores. Eye contact peaks with the iris
// centered, head stability falls with displacement, posture peaks at a face
// width of ~30% of the frame.
func Derive(w Window) Metrics {
	iris := mean(w.Features.AvgIrisX)
	head := mean(w.Features.HeadDisp)
	bbox := mean(w.Features.BBoxWidth)

	eye := Clamp(100 - math.Abs(iris-0.5)*200)
	stability := Clamp(100 - head*100)
	posture := Clamp(100 - math.Abs(bbox-0.3)*300)
	confidence := Clamp((eye*0.3 + stability*0.25 + posture*0.25 + (10-w.Features.BlinkRate)*10) / 1.2)

	return Metrics{
		EyeContact:    eye,
		HeadStability: stability,
		Posture:       posture,
		Confidence:    confidence,
	}
}

// Average derives every window and averages the result. Zero windows give
// zero metrics.
func Average(ws []Window) Metrics {
	if len(ws) == 0 {
		return Metrics{}
	}
	var sum Metrics
	for _, w := range ws {
		m := Derive(w)
		sum.EyeContact += m.EyeContact
		sum.HeadStability += m.HeadStability
		sum.Posture += m.Posture
		sum.Confidence += m.Confidence
	}
	n := float64(len(ws))
	return Metrics{
		EyeContact:    sum.EyeContact / n,
		HeadStability: sum.HeadStability / n,
		Posture:       sum.Posture / n,
		Confidence:    sum.Confidence / n,
	}
}

// BodyLanguage folds posture and head stability into one score.
func (m Metrics) BodyLanguage() float64 {
	return Clamp((m.Posture + m.HeadStability) / 2)
}

func Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total / float64(len(xs))
}
