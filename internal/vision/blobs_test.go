package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func square(x0, y0, side int) []image.Point {
	return []image.Point{
		{x0, y0}, {x0 + side, y0}, {x0 + side, y0 + side}, {x0, y0 + side},
	}
}

func TestContourFromPoints_Square(t *testing.T) {
	t.Parallel()

	c := ContourFromPoints(square(10, 20, 10))
	assert.InDelta(t, 100.0, c.Area, 1e-9)

	p, ok := c.Moments.Centroid()
	require.True(t, ok)
	assert.Equal(t, Point{X: 15, Y: 25}, p)
}

func TestContourFromPoints_OrientationIndependent(t *testing.T) {
	t.Parallel()

	pts := square(0, 0, 8)
	rev := []image.Point{pts[3], pts[2], pts[1], pts[0]}

	a := ContourFromPoints(pts)
	b := ContourFromPoints(rev)
	assert.Equal(t, a, b)
	assert.Greater(t, a.Moments.M00, 0.0)
}

func TestContourFromPoints_Degenerate(t *testing.T) {
	t.Parallel()

	line := []image.Point{{0, 0}, {5, 5}, {10, 10}}
	c := ContourFromPoints(line)
	_, ok := c.Moments.Centroid()
	assert.False(t, ok)

	assert.Equal(t, Contour{}, ContourFromPoints([]image.Point{{1, 1}}))
}

func TestCandidates(t *testing.T) {
	t.Parallel()

	big := ContourFromPoints(square(100, 200, 20))
	mid := ContourFromPoints(square(100, 20, 12))
	small := ContourFromPoints(square(0, 0, 5))

	t.Run("keeps two largest", func(t *testing.T) {
		got := Candidates([]Contour{small, mid, big}, 50)
		require.Len(t, got, 2)
		assert.Equal(t, 400.0, got[0].Area)
		assert.Equal(t, 144.0, got[1].Area)
	})

	t.Run("third blob never rescues a filtered one", func(t *testing.T) {
		got := Candidates([]Contour{big, small, small}, 50)
		assert.Len(t, got, 1)
	})

	t.Run("drops degenerate", func(t *testing.T) {
		zero := Contour{Area: 500}
		got := Candidates([]Contour{zero, big}, 50)
		require.Len(t, got, 1)
		assert.Equal(t, 400.0, got[0].Area)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, Candidates(nil, 50))
	})
}

func TestPairFromCandidates_Ordering(t *testing.T) {
	t.Parallel()

	low := BlobCandidate{Centroid: Point{X: 40, Y: 300}}
	high := BlobCandidate{Centroid: Point{X: 50, Y: 20}}

	for _, in := range [][]BlobCandidate{{low, high}, {high, low}} {
		pair, ok := PairFromCandidates(in)
		require.True(t, ok)
		assert.Equal(t, high.Centroid, pair.Pivot)
		assert.Equal(t, low.Centroid, pair.Bob)
		assert.LessOrEqual(t, pair.Pivot.Y, pair.Bob.Y)
	}

	_, ok := PairFromCandidates([]BlobCandidate{low})
	assert.False(t, ok)
	_, ok = PairFromCandidates([]BlobCandidate{low, high, low})
	assert.False(t, ok)
}

func TestExtractor_TwoDiscs(t *testing.T) {
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 240, 320, gocv.MatTypeCV8U)
	defer mask.Close()

	white := color.RGBA{R: 255, G: 255, B: 255}
	gocv.Circle(&mask, image.Pt(160, 40), 12, white, -1)
	gocv.Circle(&mask, image.Pt(190, 200), 15, white, -1)
	// speckle noise removed by erosion
	gocv.Circle(&mask, image.Pt(20, 20), 1, white, -1)

	ex := NewExtractor(DefaultExtractorParams())
	defer ex.Close()

	pair, ok := ex.Extract(mask)
	require.True(t, ok)
	assert.InDelta(t, 160, pair.Pivot.X, 1)
	assert.InDelta(t, 40, pair.Pivot.Y, 1)
	assert.InDelta(t, 190, pair.Bob.X, 1)
	assert.InDelta(t, 200, pair.Bob.Y, 1)
}

func TestExtractor_SingleDiscIsGap(t *testing.T) {
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 120, gocv.MatTypeCV8U)
	defer mask.Close()
	gocv.Circle(&mask, image.Pt(60, 60), 20, color.RGBA{R: 255, G: 255, B: 255}, -1)

	ex := NewExtractor(DefaultExtractorParams())
	defer ex.Close()

	_, ok := ex.Extract(mask)
	assert.False(t, ok)
}

func TestMask_SelectsPickedColour(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 100, 100, gocv.MatTypeCV8UC3)
	defer frame.Close()

	// BGR green disc on black
	gocv.Circle(&frame, image.Pt(50, 50), 20, color.RGBA{R: 0, G: 200, B: 0}, -1)

	picked, err := PickAt(frame, 50, 50)
	require.NoError(t, err)
	assert.Equal(t, 60, picked.H)

	mask := Mask(frame, NewHSVRange(picked, DefaultTolerance))
	defer mask.Close()

	assert.Greater(t, gocv.CountNonZero(mask), 1000)
	assert.Equal(t, uint8(0), mask.GetUCharAt(2, 2))

	_, err = PickAt(frame, 100, 0)
	assert.Error(t, err)
}
