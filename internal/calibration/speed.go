package calibration

import "math"

// MinDeflectionRad is the smallest deflection treated as measurable. Below
// it the pendulum is considered at rest.
const MinDeflectionRad = 0.001

// Speed converts a smoothed pendulum angle in degrees to wind speed in m/s.
//
// It never fails: a negligible deflection, a tangent that rounds negative
// near ±90°, NaN input or a non-finite result all yield 0. The live stream
// must keep flowing, so genuine sensor anomalies are indistinguishable from
// calm air here.
func Speed(thetaDeg float64, m Model) float64 {
	rad := math.Abs(thetaDeg) * math.Pi / 180
	if !(rad >= MinDeflectionRad) {
		return 0
	}

	tan := math.Tan(rad)
	if !(tan >= 0) {
		return 0
	}

	var v float64
	switch m := m.(type) {
	case Single:
		v = m.C * math.Sqrt(tan)
	case Double:
		v = m.A * math.Pow(tan, m.P)
	default:
		return 0
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
