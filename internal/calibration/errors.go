package calibration

import "errors"

var (
	// ErrInsufficientData is returned when fewer than MinSamples usable
	// samples remain after filtering; no fit is attempted.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDegenerateFit is returned when the least-squares system has no
	// unique solution.
	ErrDegenerateFit = errors.New("degenerate fit")

	// ErrMalformedInput is returned for calibration files or logs that lack
	// required fields or columns.
	ErrMalformedInput = errors.New("malformed input")
)
