package calibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SampleConstant returns C = V / sqrt(tan(theta)) for one reading. This is
// the quick hand calibration: hold the pendulum in a known wind and read the
// angle off the tracker.
func SampleConstant(angleDeg, speedMPS float64) (float64, error) {
	if !(angleDeg > 0) {
		return 0, fmt.Errorf("%w: angle must be positive, got %v", ErrMalformedInput, angleDeg)
	}
	if !(speedMPS > 0) {
		return 0, fmt.Errorf("%w: wind speed must be positive, got %v", ErrMalformedInput, speedMPS)
	}
	tan := math.Tan(angleDeg * math.Pi / 180)
	if !(tan > 0) || math.IsInf(tan, 0) {
		return 0, fmt.Errorf("%w: tan(%v°) is not usable", ErrMalformedInput, angleDeg)
	}
	return speedMPS / math.Sqrt(tan), nil
}

// ConstantSummary describes the spread of per-sample constants.
type ConstantSummary struct {
	N      int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	Values []float64
}

// SummarizeConstants computes a constant per measurement and reports the
// mean with population standard deviation. Any invalid sample fails the
// whole summary.
func SummarizeConstants(ms []Measurement) (ConstantSummary, error) {
	if len(ms) == 0 {
		return ConstantSummary{}, fmt.Errorf("%w: no measurements", ErrInsufficientData)
	}
	var errs []error
	cs := make([]float64, 0, len(ms))
	for i, m := range ms {
		c, err := SampleConstant(m.AngleDeg, m.GroundTruthMPS)
		if err != nil {
			errs = append(errs, fmt.Errorf("sample %d: %w", i+1, err))
			continue
		}
		cs = append(cs, c)
	}
	if len(errs) > 0 {
		return ConstantSummary{}, errors.Join(errs...)
	}

	mean, variance := stat.PopMeanVariance(cs, nil)
	return ConstantSummary{
		N:      len(cs),
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		Min:    floats.Min(cs),
		Max:    floats.Max(cs),
		Values: cs,
	}, nil
}

// ConstantFile builds the document written by the quick calibrator. It
// carries no models map; File.Model treats the constant as a single model.
func ConstantFile(s ConstantSummary, ms []Measurement) *File {
	f := &File{
		CalibrationConstant: s.Mean,
		NumSamples:          s.N,
		Notes:               "V = C * sqrt(tan(theta)), C averaged over hand-held samples",
	}
	for _, m := range ms {
		f.AngleMeasurements = append(f.AngleMeasurements, m.AngleDeg)
		f.WindMeasurements = append(f.WindMeasurements, m.GroundTruthMPS)
	}
	return f
}
