// Package vision turns camera frames into a pair of tracked pendulum points.
//
// The package is split into pure helpers (HSV ranges, contour moments and
// pair selection) that can be exercised without OpenCV, and thin gocv
// wrappers that apply them to real frames.
package vision

import "fmt"

// OpenCV 8-bit HSV channel limits.
const (
	MaxHue        = 179
	MaxSaturation = 255
	MaxValue      = 255

	// MinChroma is the floor applied to the lower saturation and value
	// bounds. It keeps near-black and near-grey pixels out of the mask no
	// matter how wide the tolerances are.
	MinChroma = 30
)

// HSV is a single pixel in OpenCV's 8-bit HSV space.
type HSV struct {
	H int `json:"h"`
	S int `json:"s"`
	V int `json:"v"`
}

func (p HSV) String() string {
	return fmt.Sprintf("HSV[%d, %d, %d]", p.H, p.S, p.V)
}

// Clamp returns p with each channel limited to its valid domain.
func (p HSV) Clamp() HSV {
	return HSV{
		H: clampInt(p.H, 0, MaxHue),
		S: clampInt(p.S, 0, MaxSaturation),
		V: clampInt(p.V, 0, MaxValue),
	}
}

// Tolerance is the half-width of the tracking window on each channel.
type Tolerance struct {
	H int `json:"h"`
	S int `json:"s"`
	V int `json:"v"`
}

// DefaultTolerance is wide enough to catch both pins under uneven lighting.
var DefaultTolerance = Tolerance{H: 20, S: 60, V: 60}

// DefaultCenter is the pin colour used until the operator picks one.
var DefaultCenter = HSV{H: 100, S: 104, V: 149}

// HSVRange is the closed box in HSV space that the mask admits.
type HSVRange struct {
	Center HSV `json:"center"`
	Lower  HSV `json:"lower"`
	Upper  HSV `json:"upper"`
}

// NewHSVRange builds the tracking window around center.
//
// The value channel's lower bound is derived from the saturation tolerance;
// this matches the range the tracker has always produced. The lower bound is
// finally capped at the center so that Lower <= Center <= Upper holds even
// for very dark or unsaturated picks.
func NewHSVRange(center HSV, tol Tolerance) HSVRange {
	c := center.Clamp()
	tol = Tolerance{H: absInt(tol.H), S: absInt(tol.S), V: absInt(tol.V)}

	lower := HSV{
		H: maxInt(0, c.H-tol.H),
		S: maxInt(MinChroma, c.S-tol.S),
		V: maxInt(MinChroma, c.V-tol.S),
	}
	upper := HSV{
		H: minInt(MaxHue, c.H+tol.H),
		S: minInt(MaxSaturation, c.S+tol.S),
		V: minInt(MaxValue, c.V+tol.V),
	}

	lower.S = minInt(lower.S, c.S)
	lower.V = minInt(lower.V, c.V)

	return HSVRange{Center: c, Lower: lower, Upper: upper}
}

// Contains reports whether p lies inside the closed range.
func (r HSVRange) Contains(p HSV) bool {
	return p.H >= r.Lower.H && p.H <= r.Upper.H &&
		p.S >= r.Lower.S && p.S <= r.Upper.S &&
		p.V >= r.Lower.V && p.V <= r.Upper.V
}

// Valid reports whether the range respects Lower <= Center <= Upper on every
// channel and stays inside the channel domains.
func (r HSVRange) Valid() bool {
	if r.Lower.Clamp() != r.Lower || r.Upper.Clamp() != r.Upper {
		return false
	}
	return r.Lower.H <= r.Center.H && r.Center.H <= r.Upper.H &&
		r.Lower.S <= r.Center.S && r.Center.S <= r.Upper.S &&
		r.Lower.V <= r.Center.V && r.Center.V <= r.Upper.V
}

func (r HSVRange) String() string {
	return fmt.Sprintf("%s..%s (center %s)", r.Lower, r.Upper, r.Center)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
