package calibration

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MinSamples is the fewest usable samples any fit will accept.
const MinSamples = 3

// Measurement pairs a tracked angle with the anemometer reading taken at the
// same moment.
type Measurement struct {
	AngleDeg       float64
	GroundTruthMPS float64
}

// FitOptions holds the filters applied before fitting. Both thresholds are
// recorded in the calibration file so a fit can be reproduced.
type FitOptions struct {
	MinSpeed    float64
	MinAngleDeg float64
}

// DefaultFitOptions drops near-calm samples, where the anemometer and the
// pendulum are both dominated by noise.
func DefaultFitOptions() FitOptions {
	return FitOptions{MinSpeed: 0.5, MinAngleDeg: 0.2}
}

// Metrics summarises the error of a fitted model on its own samples.
type Metrics struct {
	MAE     float64 `json:"mae"`
	MAPEPct float64 `json:"mape_pct"`
	RMSE    float64 `json:"rmse"`
}

// FitResult is the outcome of fitting one model.
type FitResult struct {
	Name    string
	Model   Model
	Metrics Metrics
	Samples int
	Err     error
}

// OK reports whether the fit produced a model.
func (r FitResult) OK() bool { return r.Err == nil && r.Model != nil }

type sample struct {
	tan float64
	v   float64
}

// usableSamples applies the angle and speed filters. Angles are folded to
// their magnitude; a tangent that is not strictly positive (at or past 90°)
// is dropped.
func usableSamples(ms []Measurement, opts FitOptions) []sample {
	minRad := opts.MinAngleDeg * math.Pi / 180
	out := make([]sample, 0, len(ms))
	for _, m := range ms {
		if math.IsNaN(m.AngleDeg) || math.IsInf(m.AngleDeg, 0) ||
			math.IsNaN(m.GroundTruthMPS) || math.IsInf(m.GroundTruthMPS, 0) {
			continue
		}
		rad := math.Abs(m.AngleDeg) * math.Pi / 180
		if rad < minRad {
			continue
		}
		tan := math.Tan(rad)
		if !(tan > 0) || math.IsInf(tan, 0) {
			continue
		}
		if m.GroundTruthMPS < opts.MinSpeed {
			continue
		}
		out = append(out, sample{tan: tan, v: m.GroundTruthMPS})
	}
	return out
}

// FitSingle solves the closed-form least-squares constant for
// V = C * sqrt(tan(|theta|)).
func FitSingle(ms []Measurement, opts FitOptions) (Single, Metrics, int, error) {
	ss := usableSamples(ms, opts)
	if len(ss) < MinSamples {
		return Single{}, Metrics{}, len(ss), fmt.Errorf("%w: %d usable samples, need %d", ErrInsufficientData, len(ss), MinSamples)
	}

	var num, den float64
	for _, s := range ss {
		x := math.Sqrt(s.tan)
		num += x * s.v
		den += x * x
	}
	if !(den > 0) {
		return Single{}, Metrics{}, len(ss), fmt.Errorf("%w: zero regressor energy", ErrDegenerateFit)
	}

	m := Single{C: num / den}
	return m, metricsFor(ss, m), len(ss), nil
}

// FitDouble fits V = A * tan(|theta|)^p by ordinary least squares in log
// space: ln V = ln A + p ln tan.
func FitDouble(ms []Measurement, opts FitOptions) (Double, Metrics, int, error) {
	ss := usableSamples(ms, opts)
	// ln V needs V > 0; MinSpeed may have been set to zero.
	pos := ss[:0:0]
	for _, s := range ss {
		if s.v > 0 {
			pos = append(pos, s)
		}
	}
	if len(pos) < MinSamples {
		return Double{}, Metrics{}, len(pos), fmt.Errorf("%w: %d usable samples, need %d", ErrInsufficientData, len(pos), MinSamples)
	}

	n := len(pos)
	x := mat.NewDense(n, 2, nil)
	y := mat.NewVecDense(n, nil)
	for i, s := range pos {
		x.Set(i, 0, 1)
		x.Set(i, 1, math.Log(s.tan))
		y.SetVec(i, math.Log(s.v))
	}

	var qr mat.QR
	qr.Factorize(x)
	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, y); err != nil {
		return Double{}, Metrics{}, n, fmt.Errorf("%w: %v", ErrDegenerateFit, err)
	}

	m := Double{A: math.Exp(beta.AtVec(0)), P: beta.AtVec(1)}
	if math.IsNaN(m.A) || math.IsInf(m.A, 0) || math.IsNaN(m.P) || math.IsInf(m.P, 0) {
		return Double{}, Metrics{}, n, fmt.Errorf("%w: non-finite parameters %s", ErrDegenerateFit, m)
	}
	return m, metricsFor(pos, m), n, nil
}

func metricsFor(ss []sample, m Model) Metrics {
	truth := make([]float64, len(ss))
	pred := make([]float64, len(ss))
	for i, s := range ss {
		truth[i] = s.v
		switch m := m.(type) {
		case Single:
			pred[i] = m.C * math.Sqrt(s.tan)
		case Double:
			pred[i] = m.A * math.Pow(s.tan, m.P)
		}
	}
	return ComputeMetrics(truth, pred)
}

// ComputeMetrics returns MAE, RMSE and MAPE of pred against truth. The
// percentage error divides by max(|truth|, 1e-9) so zero readings stay
// finite. Mismatched or empty inputs return zero metrics.
func ComputeMetrics(truth, pred []float64) Metrics {
	if len(truth) == 0 || len(truth) != len(pred) {
		return Metrics{}
	}
	abs := make([]float64, len(truth))
	sq := make([]float64, len(truth))
	pct := make([]float64, len(truth))
	for i := range truth {
		e := pred[i] - truth[i]
		abs[i] = math.Abs(e)
		sq[i] = e * e
		pct[i] = math.Abs(e) / math.Max(math.Abs(truth[i]), 1e-9)
	}
	return Metrics{
		MAE:     stat.Mean(abs, nil),
		RMSE:    math.Sqrt(stat.Mean(sq, nil)),
		MAPEPct: stat.Mean(pct, nil) * 100,
	}
}

// FitModels fits each named model independently, in the order given.
// Unknown names produce a failed result rather than aborting the others.
func FitModels(ms []Measurement, opts FitOptions, names []string) []FitResult {
	results := make([]FitResult, 0, len(names))
	for _, name := range names {
		r := FitResult{Name: name}
		switch name {
		case ModelSingle:
			m, met, n, err := FitSingle(ms, opts)
			r.Metrics, r.Samples, r.Err = met, n, err
			if err == nil {
				r.Model = m
			}
		case ModelDouble:
			m, met, n, err := FitDouble(ms, opts)
			r.Metrics, r.Samples, r.Err = met, n, err
			if err == nil {
				r.Model = m
			}
		default:
			r.Err = fmt.Errorf("%w: unknown model %q", ErrMalformedInput, name)
		}
		results = append(results, r)
	}
	return results
}

// Recommend picks the successful result with the lowest RMSE. On equal RMSE
// the model with fewer parameters wins, then the name, so the choice does not
// depend on the order models were requested in.
func Recommend(results []FitResult) (string, bool) {
	ok := make([]FitResult, 0, len(results))
	for _, r := range results {
		if r.OK() {
			ok = append(ok, r)
		}
	}
	if len(ok) == 0 {
		return "", false
	}
	sort.SliceStable(ok, func(i, j int) bool {
		if ok[i].Metrics.RMSE != ok[j].Metrics.RMSE {
			return ok[i].Metrics.RMSE < ok[j].Metrics.RMSE
		}
		if ok[i].Model.NumParams() != ok[j].Model.NumParams() {
			return ok[i].Model.NumParams() < ok[j].Model.NumParams()
		}
		return ok[i].Name < ok[j].Name
	})
	return ok[0].Name, true
}

// Fit runs FitModels and assembles a calibration file from the successes.
// When every requested model fails the joined errors are returned and the
// file is nil; partial failures are reported in the results only.
func Fit(ms []Measurement, opts FitOptions, names []string) (*File, []FitResult, error) {
	results := FitModels(ms, opts, names)

	var errs []error
	for _, r := range results {
		if !r.OK() {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, r.Err))
		}
	}
	best, ok := Recommend(results)
	if !ok {
		if len(errs) == 0 {
			errs = append(errs, errors.New("no models requested"))
		}
		return nil, results, errors.Join(errs...)
	}

	f := NewFile()
	for _, r := range results {
		if r.OK() {
			f.SetModel(r.Model, r.Metrics, opts)
		}
	}
	f.RecommendedModel = best
	return f, results, nil
}
