package tracking

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/wind.report/internal/calibration"
	"github.com/banshee-data/wind.report/internal/monitoring"
	"github.com/banshee-data/wind.report/internal/timeutil"
	"github.com/banshee-data/wind.report/internal/units"
	"github.com/banshee-data/wind.report/internal/vision"
)

// Output selects what the live loop emits.
type Output string

const (
	// OutputAngle emits the smoothed angle in degrees, used while collecting
	// calibration data.
	OutputAngle Output = "angle"
	// OutputSpeed emits calibrated wind speed.
	OutputSpeed Output = "speed"
)

// ErrNoSnapshot is returned when a colour pick is requested before any frame
// has been processed.
var ErrNoSnapshot = errors.New("no frame captured yet")

// Emitter delivers one value per produced sample out of process.
type Emitter interface {
	Emit(ctx context.Context, value float64) error
}

// Recorder persists produced samples. It is optional.
type Recorder interface {
	RecordSample(ctx context.Context, s Sample) error
}

// Sample is what the pipeline produced for one tracked frame. Value is what
// was handed to the emitter, in the configured output and units.
type Sample struct {
	AngleSample
	Pair     vision.TrackedPair
	SpeedMPS float64
	Value    float64
}

// Options configures a Pipeline.
type Options struct {
	Tolerance   vision.Tolerance
	Extractor   vision.ExtractorParams
	Alpha       float64
	Output      Output
	Model       calibration.Model
	Units       string
	EmitTimeout time.Duration
	Clock       timeutil.Clock
}

func DefaultOptions() Options {
	return Options{
		Tolerance:   vision.DefaultTolerance,
		Extractor:   vision.DefaultExtractorParams(),
		Alpha:       DefaultAlpha,
		Output:      OutputAngle,
		Units:       units.MPS,
		EmitTimeout: 500 * time.Millisecond,
		Clock:       timeutil.RealClock{},
	}
}

// Stats is a point-in-time view of the live loop for status pages.
type Stats struct {
	Frames       int64           `json:"frames"`
	Tracked      int64           `json:"tracked"`
	Gaps         int64           `json:"gaps"`
	Emitted      int64           `json:"emitted"`
	EmitErrors   int64           `json:"emit_errors"`
	RecordErrors int64           `json:"record_errors"`
	State        string          `json:"state"`
	SmoothedDeg  float64         `json:"smoothed_deg"`
	LastValue    float64         `json:"last_value"`
	LastSample   time.Time       `json:"last_sample"`
	Output       Output          `json:"output"`
	Units        string          `json:"units"`
	Range        vision.HSVRange `json:"range"`
}

// Pipeline runs mask → blob pair → angle → speed → emit for each frame.
//
// Run and ProcessFrame must be called from a single goroutine. SetRange,
// PickAt, Stats and Snapshot may be called concurrently with them.
type Pipeline struct {
	opts    Options
	rng     atomic.Pointer[vision.HSVRange]
	ex      *vision.Extractor
	est     *Estimator
	emitter Emitter
	rec     Recorder
	warn    *monitoring.Throttle

	statsMu sync.Mutex
	stats   Stats

	frameMu  sync.Mutex
	last     gocv.Mat
	lastPair vision.TrackedPair
	lastOK   bool
}

// NewPipeline validates opts and prepares the loop. rec may be nil.
func NewPipeline(initial vision.HSVRange, opts Options, emitter Emitter, rec Recorder) (*Pipeline, error) {
	if emitter == nil {
		return nil, errors.New("pipeline needs an emitter")
	}
	if !initial.Valid() {
		return nil, fmt.Errorf("invalid colour range %s", initial)
	}
	switch opts.Output {
	case OutputAngle:
	case OutputSpeed:
		if opts.Model == nil {
			return nil, errors.New("speed output needs a calibration model")
		}
	default:
		return nil, fmt.Errorf("unknown output %q", opts.Output)
	}
	if opts.Units == "" {
		opts.Units = units.MPS
	}
	if !units.IsValid(opts.Units) {
		return nil, fmt.Errorf("invalid units %q, expected one of %s", opts.Units, units.GetValidUnitsString())
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	est, err := NewEstimator(opts.Alpha)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		opts:    opts,
		ex:      vision.NewExtractor(opts.Extractor),
		est:     est,
		emitter: emitter,
		rec:     rec,
		warn:    monitoring.NewThrottle(5*time.Second, opts.Clock.Now),
		last:    gocv.NewMat(),
	}
	p.rng.Store(&initial)
	p.stats = Stats{State: NoTrack.String(), Output: opts.Output, Units: opts.Units, Range: initial}
	return p, nil
}

// Range returns the colour range the next frame will use.
func (p *Pipeline) Range() vision.HSVRange { return *p.rng.Load() }

// SetRange swaps the colour range. The frame in flight keeps the range it
// loaded; the next frame sees the new one.
func (p *Pipeline) SetRange(r vision.HSVRange) {
	p.rng.Store(&r)
	p.statsMu.Lock()
	p.stats.Range = r
	p.statsMu.Unlock()
	monitoring.Logf("colour range set to %s", r)
}

// PickAt re-centres the colour range on the pixel at (x, y) of the most
// recent frame, using the configured tolerance.
func (p *Pipeline) PickAt(x, y int) (vision.HSVRange, error) {
	p.frameMu.Lock()
	if p.last.Empty() {
		p.frameMu.Unlock()
		return vision.HSVRange{}, ErrNoSnapshot
	}
	hsv, err := vision.PickAt(p.last, x, y)
	p.frameMu.Unlock()
	if err != nil {
		return vision.HSVRange{}, err
	}
	r := vision.NewHSVRange(hsv, p.opts.Tolerance)
	p.SetRange(r)
	return r, nil
}

// ProcessFrame runs one frame through the pipeline. The bool reports whether
// a sample was produced; a tracking gap produces none.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame gocv.Mat) (Sample, bool) {
	r := p.rng.Load()
	mask := vision.Mask(frame, *r)
	pair, ok := p.ex.Extract(mask)
	mask.Close()

	p.frameMu.Lock()
	frame.CopyTo(&p.last)
	p.lastPair, p.lastOK = pair, ok
	p.frameMu.Unlock()

	return p.Step(ctx, pair, ok)
}

// Step advances the estimator with the outcome of one frame's extraction and
// emits the resulting value. Emit and record failures are logged and counted;
// they never affect the tracking state.
func (p *Pipeline) Step(ctx context.Context, pair vision.TrackedPair, ok bool) (Sample, bool) {
	as, produced := p.est.Observe(pair, ok, p.opts.Clock.Now())

	p.statsMu.Lock()
	p.stats.Frames++
	p.stats.State = p.est.State().String()
	if !produced {
		p.stats.Gaps++
		p.statsMu.Unlock()
		return Sample{}, false
	}
	p.stats.Tracked++
	p.statsMu.Unlock()

	s := Sample{AngleSample: as, Pair: pair}
	if p.opts.Model != nil {
		s.SpeedMPS = calibration.Speed(as.SmoothedDeg, p.opts.Model)
	}
	switch p.opts.Output {
	case OutputSpeed:
		s.Value = units.ConvertSpeed(s.SpeedMPS, p.opts.Units)
	default:
		s.Value = as.SmoothedDeg
	}

	emitErr := p.emit(ctx, s.Value)
	var recErr error
	if p.rec != nil {
		if recErr = p.rec.RecordSample(ctx, s); recErr != nil {
			p.warn.Logf("record", "failed to record sample: %v", recErr)
		}
	}

	p.statsMu.Lock()
	if emitErr != nil {
		p.stats.EmitErrors++
	} else {
		p.stats.Emitted++
	}
	if recErr != nil {
		p.stats.RecordErrors++
	}
	p.stats.SmoothedDeg = as.SmoothedDeg
	p.stats.LastValue = s.Value
	p.stats.LastSample = as.Timestamp
	p.statsMu.Unlock()

	return s, true
}

func (p *Pipeline) emit(ctx context.Context, v float64) error {
	ectx := ctx
	if p.opts.EmitTimeout > 0 {
		var cancel context.CancelFunc
		ectx, cancel = context.WithTimeout(ctx, p.opts.EmitTimeout)
		defer cancel()
	}
	if err := p.emitter.Emit(ectx, v); err != nil {
		p.warn.Logf("emit", "telemetry emit dropped: %v", err)
		return err
	}
	return nil
}

// Run reads frames until the source is exhausted, fails, or ctx is done.
// A finite source ending with io.EOF is a clean stop.
func (p *Pipeline) Run(ctx context.Context, src FrameSource) error {
	frame := gocv.NewMat()
	defer frame.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := src.Read(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("frame source: %w", err)
		}
		p.ProcessFrame(ctx, frame)
	}
}

func (p *Pipeline) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

var (
	pivotColour = color.RGBA{R: 0, G: 0, B: 255}
	bobColour   = color.RGBA{R: 255, G: 0, B: 0}
	rodColour   = color.RGBA{R: 0, G: 255, B: 0}
	textColour  = color.RGBA{R: 255, G: 255, B: 0}
)

// Snapshot encodes the most recent frame as PNG with the tracked pair and
// angle drawn on it.
func (p *Pipeline) Snapshot() ([]byte, error) {
	p.frameMu.Lock()
	if p.last.Empty() {
		p.frameMu.Unlock()
		return nil, ErrNoSnapshot
	}
	img := p.last.Clone()
	pair, ok := p.lastPair, p.lastOK
	p.frameMu.Unlock()
	defer img.Close()

	if ok {
		pv := image.Pt(pair.Pivot.X, pair.Pivot.Y)
		bb := image.Pt(pair.Bob.X, pair.Bob.Y)
		gocv.Line(&img, pv, bb, rodColour, 2)
		gocv.Circle(&img, pv, 8, pivotColour, -1)
		gocv.Circle(&img, bb, 8, bobColour, -1)
	}
	st := p.Stats()
	gocv.PutText(&img, fmt.Sprintf("Angle: %.2f", st.SmoothedDeg), image.Pt(20, 50),
		gocv.FontHersheySimplex, 1, textColour, 2)

	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// Close releases OpenCV buffers held by the pipeline.
func (p *Pipeline) Close() error {
	p.frameMu.Lock()
	defer p.frameMu.Unlock()
	if err := p.last.Close(); err != nil {
		return err
	}
	return p.ex.Close()
}
