// Package calibration maps pendulum angles to wind speed and fits that
// mapping against ground-truth anemometer readings.
package calibration

import "fmt"

// Model names as they appear in the calibration file and on the command line.
const (
	ModelSingle = "single"
	ModelDouble = "double"
)

// Model is a fitted angle→speed law. The set of implementations is closed:
// Speed switches over every one of them.
type Model interface {
	// Name is the key used in the calibration file.
	Name() string
	// Formula is the human-readable law stored alongside the parameters.
	Formula() string
	// NumParams is used to prefer the simpler model on equal error.
	NumParams() int

	sealed()
}

// Single is V = C * sqrt(tan(|theta|)), the drag-balance law with one
// lumped constant.
type Single struct {
	C float64
}

func (Single) Name() string    { return ModelSingle }
func (Single) Formula() string { return "V = C * sqrt(tan(|theta|))" }
func (Single) NumParams() int  { return 1 }
func (Single) sealed()         {}

func (m Single) String() string { return fmt.Sprintf("single(C=%.6f)", m.C) }

// Double is V = A * tan(|theta|)^p, which lets the exponent absorb
// Reynolds-number effects the square-root law ignores.
type Double struct {
	A float64
	P float64
}

func (Double) Name() string    { return ModelDouble }
func (Double) Formula() string { return "V = A * (tan(|theta|))**p" }
func (Double) NumParams() int  { return 2 }
func (Double) sealed()         {}

func (m Double) String() string { return fmt.Sprintf("double(A=%.6f, p=%.4f)", m.A, m.P) }

// ValidModelName reports whether name is a fittable model.
func ValidModelName(name string) bool {
	return name == ModelSingle || name == ModelDouble
}
