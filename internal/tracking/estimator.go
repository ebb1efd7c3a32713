// Package tracking turns per-frame blob pairs into a smoothed pendulum angle
// and drives the live frame→telemetry loop.
package tracking

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/wind.report/internal/vision"
)

// DefaultAlpha weights each new reading at 20%, enough to suppress blob
// centroid jitter without lagging a gust by more than a few frames.
const DefaultAlpha = 0.2

var ErrInvalidAlpha = errors.New("smoothing alpha must be in (0, 1]")

// State is the tracking state of an Estimator.
type State int

const (
	NoTrack State = iota
	Tracking
)

func (s State) String() string {
	switch s {
	case NoTrack:
		return "no_track"
	case Tracking:
		return "tracking"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// AngleSample is one smoothed reading. Only SmoothedDeg is carried forward.
type AngleSample struct {
	RawDeg      float64
	SmoothedDeg float64
	Timestamp   time.Time
}

// RawAngle is the signed deflection of the pivot→bob segment from vertical,
// in degrees. Positive when the bob is to the right of the pivot in image
// coordinates.
func RawAngle(p vision.TrackedPair) float64 {
	dx := float64(p.Bob.X - p.Pivot.X)
	dy := float64(p.Bob.Y - p.Pivot.Y)
	return math.Atan2(dx, dy) * 180 / math.Pi
}

// Estimator holds the exponential smoothing state across frames. It is not
// safe for concurrent use; the live loop owns it.
type Estimator struct {
	alpha     float64
	prevTheta float64
	state     State
}

// NewEstimator returns an estimator starting from 0° in NoTrack.
func NewEstimator(alpha float64) (*Estimator, error) {
	if !(alpha > 0 && alpha <= 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidAlpha, alpha)
	}
	return &Estimator{alpha: alpha}, nil
}

// Update folds a tracked pair into the smoothed angle.
func (e *Estimator) Update(p vision.TrackedPair, ts time.Time) AngleSample {
	raw := RawAngle(p)
	e.prevTheta = e.alpha*raw + (1-e.alpha)*e.prevTheta
	e.state = Tracking
	return AngleSample{RawDeg: raw, SmoothedDeg: e.prevTheta, Timestamp: ts}
}

// Miss records a frame with no tracked pair. The smoothed angle is kept so
// tracking resumes from the last known value.
func (e *Estimator) Miss() {
	e.state = NoTrack
}

// Observe is Update or Miss depending on ok. The returned bool reports
// whether a sample was produced.
func (e *Estimator) Observe(p vision.TrackedPair, ok bool, ts time.Time) (AngleSample, bool) {
	if !ok {
		e.Miss()
		return AngleSample{}, false
	}
	return e.Update(p, ts), true
}

func (e *Estimator) State() State      { return e.state }
func (e *Estimator) Smoothed() float64 { return e.prevTheta }
func (e *Estimator) Alpha() float64    { return e.alpha }
