package vision

import (
	"image"
	"sort"

	"gocv.io/x/gocv"
)

// Point is an integer pixel coordinate; y grows downwards.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// BlobCandidate is one connected component that survived area filtering.
type BlobCandidate struct {
	Centroid Point
	Area     float64
}

// TrackedPair is the pendulum seen in one frame. Pivot is always the upper
// point (Pivot.Y <= Bob.Y), which assumes the camera is mounted upright.
type TrackedPair struct {
	Pivot Point `json:"pivot"`
	Bob   Point `json:"bob"`
}

// Moments holds the zeroth and first area moments of a contour.
type Moments struct {
	M00 float64
	M10 float64
	M01 float64
}

// Centroid returns the moment centroid truncated to whole pixels. ok is
// false for a degenerate component with zero area.
func (m Moments) Centroid() (p Point, ok bool) {
	if m.M00 == 0 {
		return Point{}, false
	}
	return Point{X: int(m.M10 / m.M00), Y: int(m.M01 / m.M00)}, true
}

// Contour is an external component outline reduced to what pair selection
// needs.
type Contour struct {
	Area    float64
	Moments Moments
}

// ContourFromPoints computes polygon area moments with Green's theorem, the
// same way OpenCV does for a contour. Orientation is normalised so M00 is
// never negative.
func ContourFromPoints(pts []image.Point) Contour {
	n := len(pts)
	if n < 3 {
		return Contour{}
	}

	var a00, a10, a01 float64
	for i := 0; i < n; i++ {
		prev := pts[(i+n-1)%n]
		cur := pts[i]
		cross := float64(prev.X*cur.Y - cur.X*prev.Y)
		a00 += cross
		a10 += cross * float64(prev.X+cur.X)
		a01 += cross * float64(prev.Y+cur.Y)
	}

	m := Moments{M00: a00 / 2, M10: a10 / 6, M01: a01 / 6}
	if m.M00 < 0 {
		m = Moments{M00: -m.M00, M10: -m.M10, M01: -m.M01}
	}
	return Contour{Area: m.M00, Moments: m}
}

// Candidates keeps the two largest contours, drops any smaller than minArea
// and any with degenerate moments, and returns the survivors largest first.
func Candidates(contours []Contour, minArea float64) []BlobCandidate {
	ranked := make([]Contour, len(contours))
	copy(ranked, contours)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Area > ranked[j].Area })
	if len(ranked) > 2 {
		ranked = ranked[:2]
	}

	out := make([]BlobCandidate, 0, 2)
	for _, c := range ranked {
		if c.Area < minArea {
			continue
		}
		centroid, ok := c.Moments.Centroid()
		if !ok {
			continue
		}
		out = append(out, BlobCandidate{Centroid: centroid, Area: c.Area})
	}
	return out
}

// PairFromCandidates orders exactly two candidates into a TrackedPair by
// ascending y. Any other count is a tracking gap.
func PairFromCandidates(cands []BlobCandidate) (TrackedPair, bool) {
	if len(cands) != 2 {
		return TrackedPair{}, false
	}
	a, b := cands[0].Centroid, cands[1].Centroid
	if b.Y < a.Y {
		a, b = b, a
	}
	return TrackedPair{Pivot: a, Bob: b}, true
}

// ExtractorParams controls mask clean-up and blob filtering.
type ExtractorParams struct {
	ErodeIterations  int
	DilateIterations int
	KernelSize       int
	MinArea          float64
}

// DefaultExtractorParams mirrors the tuning used on the rig: one erosion and
// two dilations with a 3x3 kernel, ignoring blobs under 50 px².
func DefaultExtractorParams() ExtractorParams {
	return ExtractorParams{
		ErodeIterations:  1,
		DilateIterations: 2,
		KernelSize:       3,
		MinArea:          50,
	}
}

// Extractor finds the pivot/bob pair in binary masks. It holds the
// structuring element, so callers must Close it.
type Extractor struct {
	params ExtractorParams
	kernel gocv.Mat
}

// NewExtractor creates an Extractor for the given parameters.
func NewExtractor(params ExtractorParams) *Extractor {
	if params.KernelSize <= 0 {
		params.KernelSize = 3
	}
	return &Extractor{
		params: params,
		kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(params.KernelSize, params.KernelSize)),
	}
}

// Params returns the extractor configuration.
func (e *Extractor) Params() ExtractorParams {
	return e.params
}

// Close releases the structuring element.
func (e *Extractor) Close() error {
	return e.kernel.Close()
}

// Extract runs erosion, dilation and contour analysis on mask. ok is false
// when the frame does not contain exactly two usable blobs.
func (e *Extractor) Extract(mask gocv.Mat) (TrackedPair, bool) {
	if mask.Empty() {
		return TrackedPair{}, false
	}

	cleaned := mask.Clone()
	defer cleaned.Close()

	for i := 0; i < e.params.ErodeIterations; i++ {
		gocv.Erode(cleaned, &cleaned, e.kernel)
	}
	for i := 0; i < e.params.DilateIterations; i++ {
		gocv.Dilate(cleaned, &cleaned, e.kernel)
	}

	contours := gocv.FindContours(cleaned, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	outlines := make([]Contour, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		pv := contours.At(i)
		c := ContourFromPoints(pv.ToPoints())
		c.Area = gocv.ContourArea(pv)
		outlines = append(outlines, c)
	}

	return PairFromCandidates(Candidates(outlines, e.params.MinArea))
}
