package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Mask converts a BGR frame to HSV and returns the binary mask of pixels
// inside r. The caller owns the returned Mat.
func Mask(frame gocv.Mat, r HSVRange) gocv.Mat {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	gocv.InRangeWithScalar(hsv, toScalar(r.Lower), toScalar(r.Upper), &mask)
	return mask
}

// PickAt returns the HSV colour of the BGR frame at pixel (x, y). It backs
// the operator's "click on a pin" re-pick.
func PickAt(frame gocv.Mat, x, y int) (HSV, error) {
	if frame.Empty() {
		return HSV{}, fmt.Errorf("empty frame")
	}
	if x < 0 || y < 0 || x >= frame.Cols() || y >= frame.Rows() {
		return HSV{}, fmt.Errorf("pixel (%d, %d) outside %dx%d frame", x, y, frame.Cols(), frame.Rows())
	}

	px := frame.Region(image.Rect(x, y, x+1, y+1))
	defer px.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(px, &hsv, gocv.ColorBGRToHSV)

	v := hsv.GetVecbAt(0, 0)
	return HSV{H: int(v[0]), S: int(v[1]), V: int(v[2])}, nil
}

func toScalar(p HSV) gocv.Scalar {
	return gocv.NewScalar(float64(p.H), float64(p.S), float64(p.V), 0)
}
