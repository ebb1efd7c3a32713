package tracking

import (
	"errors"
	"fmt"
	"io"

	"gocv.io/x/gocv"
)

// ErrNoFrame is returned by a live source when the device stops delivering
// frames.
var ErrNoFrame = errors.New("no frame from capture device")

// FrameSource delivers BGR frames. Read blocks until a frame is available and
// returns io.EOF when a finite source is exhausted.
type FrameSource interface {
	Read(dst *gocv.Mat) error
}

// CaptureSource reads from a camera or a recorded video through OpenCV.
type CaptureSource struct {
	cap  *gocv.VideoCapture
	live bool
}

// OpenCamera opens capture device id and requests the given resolution.
// Zero width or height leaves the driver default.
func OpenCamera(id, width, height int) (*CaptureSource, error) {
	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", id, err)
	}
	if width > 0 && height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	return &CaptureSource{cap: vc, live: true}, nil
}

// OpenVideo replays a recorded video file frame by frame.
func OpenVideo(path string) (*CaptureSource, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}
	return &CaptureSource{cap: vc}, nil
}

func (s *CaptureSource) Read(dst *gocv.Mat) error {
	if ok := s.cap.Read(dst); !ok || dst.Empty() {
		if s.live {
			return ErrNoFrame
		}
		return io.EOF
	}
	return nil
}

func (s *CaptureSource) Close() error {
	return s.cap.Close()
}
