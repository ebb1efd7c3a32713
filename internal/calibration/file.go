package calibration

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFile is where the fitter writes and the live tracker reads.
const DefaultFile = "pendulum_calibration.json"

// maxFileSize guards against pointing the loader at something that is not a
// calibration file.
const maxFileSize = 1 << 20

// ModelAuto asks File.Resolve to follow the recommended model.
const ModelAuto = "auto"

// ModelEntry is the persisted form of one fitted model. Fields are declared
// in key order so encoded files match those written by earlier tools.
type ModelEntry struct {
	A           *float64 `json:"A,omitempty"`
	C           *float64 `json:"C,omitempty"`
	Metrics     Metrics  `json:"metrics"`
	MinAngleDeg float64  `json:"min_angle_deg"`
	MinSpeed    float64  `json:"min_speed"`
	Formula     string   `json:"model"`
	P           *float64 `json:"p,omitempty"`
}

// File is the calibration store document.
//
// CalibrationConstant mirrors the single model's C. Files written by the
// quick per-sample calibrator carry only the constant plus the raw
// measurements, and no models map.
type File struct {
	AngleMeasurements   []float64             `json:"angle_measurements,omitempty"`
	CalibrationConstant float64               `json:"calibration_constant"`
	Models              map[string]ModelEntry `json:"models,omitempty"`
	Notes               string                `json:"notes,omitempty"`
	NumSamples          int                   `json:"num_samples,omitempty"`
	RecommendedModel    string                `json:"recommended_model,omitempty"`
	WindMeasurements    []float64             `json:"wind_measurements,omitempty"`
}

// NewFile returns an empty store with the back-compat constant at 1.0.
func NewFile() *File {
	return &File{CalibrationConstant: 1.0, Models: map[string]ModelEntry{}}
}

// SetModel records m with its metrics and the filters it was fitted under.
func (f *File) SetModel(m Model, met Metrics, opts FitOptions) {
	if f.Models == nil {
		f.Models = map[string]ModelEntry{}
	}
	e := ModelEntry{
		Metrics:     met,
		MinAngleDeg: opts.MinAngleDeg,
		MinSpeed:    opts.MinSpeed,
		Formula:     m.Formula(),
	}
	switch m := m.(type) {
	case Single:
		c := m.C
		e.C = &c
		f.CalibrationConstant = m.C
	case Double:
		a, p := m.A, m.P
		e.A, e.P = &a, &p
	}
	f.Models[m.Name()] = e
}

// Model decodes the named entry.
func (f *File) Model(name string) (Model, error) {
	e, ok := f.Models[name]
	if !ok {
		// Constant-only files still describe a usable single model.
		if name == ModelSingle && len(f.Models) == 0 && f.CalibrationConstant > 0 {
			return Single{C: f.CalibrationConstant}, nil
		}
		return nil, fmt.Errorf("%w: no %q model in calibration file", ErrMalformedInput, name)
	}
	switch name {
	case ModelSingle:
		if e.C == nil {
			return nil, fmt.Errorf("%w: single model missing C", ErrMalformedInput)
		}
		return Single{C: *e.C}, nil
	case ModelDouble:
		if e.A == nil || e.P == nil {
			return nil, fmt.Errorf("%w: double model missing A or p", ErrMalformedInput)
		}
		return Double{A: *e.A, P: *e.P}, nil
	}
	return nil, fmt.Errorf("%w: unknown model %q", ErrMalformedInput, name)
}

// Metrics returns the stored metrics for name, if any.
func (f *File) Metrics(name string) (Metrics, bool) {
	e, ok := f.Models[name]
	return e.Metrics, ok
}

// Resolve turns a user choice (auto, single or double) into a model. Auto
// follows recommended_model; only constant-only files may omit it.
func (f *File) Resolve(choice string) (Model, error) {
	switch choice {
	case "", ModelAuto:
		if f.RecommendedModel == "" {
			if len(f.Models) == 0 && f.CalibrationConstant > 0 {
				return Single{C: f.CalibrationConstant}, nil
			}
			return nil, fmt.Errorf("%w: no recommended_model, choose single or double explicitly", ErrMalformedInput)
		}
		return f.Model(f.RecommendedModel)
	case ModelSingle, ModelDouble:
		return f.Model(choice)
	}
	return nil, fmt.Errorf("unknown model choice %q", choice)
}

// Encode writes the document as two-space indented JSON.
func (f *File) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}

// Decode reads a calibration document.
func Decode(r io.Reader) (*File, error) {
	var f File
	if err := json.NewDecoder(io.LimitReader(r, maxFileSize)).Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return &f, nil
}

// Load reads the calibration file at path.
func Load(path string) (*File, error) {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return nil, fmt.Errorf("calibration file must be .json: %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat calibration file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("calibration file too large: %d bytes", info.Size())
	}

	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open calibration file: %w", err)
	}
	defer fh.Close()

	f, err := Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Save writes the file via a temporary sibling and a rename, so readers never
// observe a partial document.
func (f *File) Save(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".calibration-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := f.Encode(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode calibration: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to chmod calibration file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}
	return nil
}
