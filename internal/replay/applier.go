// Package replay applies fitted calibration models to recorded CSV logs.
package replay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/wind.report/internal/calibration"
)

// Column names read from recorded logs. During calibration runs the student
// column carries the pendulum angle in degrees, not a speed.
const (
	ColumnStudent     = "student_mps"
	ColumnGroundTruth = "ground_truth_mps"
)

// Mode selects which models an Applier replays.
type Mode string

const (
	ModeSingle Mode = calibration.ModelSingle
	ModeDouble Mode = calibration.ModelDouble
	ModeBoth   Mode = "both"
)

// Row is the parsed view of one replayed log row. Predicted holds one speed
// per applied model, NaN when the angle did not parse.
type Row struct {
	AngleDeg       float64
	GroundTruthMPS float64
	HasGroundTruth bool
	Predicted      []float64
}

// ModelSummary aggregates one model's error over rows with ground truth.
type ModelSummary struct {
	Model    string
	Compared int
	Metrics  calibration.Metrics
}

// Summary describes a completed replay.
type Summary struct {
	Rows   int
	Models []ModelSummary
	Data   []Row
}

// Applier replays one or two models over a log.
type Applier struct {
	mode   Mode
	models []calibration.Model
}

// NewApplier builds an applier. Single and double modes take the one model
// they name; both mode takes a single model followed by a double model.
func NewApplier(mode Mode, models ...calibration.Model) (*Applier, error) {
	switch mode {
	case ModeSingle, ModeDouble:
		if len(models) != 1 || models[0] == nil || models[0].Name() != string(mode) {
			return nil, fmt.Errorf("%s mode needs exactly one %s model", mode, mode)
		}
	case ModeBoth:
		if len(models) != 2 || models[0] == nil || models[1] == nil ||
			models[0].Name() != calibration.ModelSingle || models[1].Name() != calibration.ModelDouble {
			return nil, errors.New("both mode needs a single and a double model, in that order")
		}
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	return &Applier{mode: mode, models: models}, nil
}

// ForFile resolves choice (auto, single, double or both) against a
// calibration file.
func ForFile(f *calibration.File, choice string) (*Applier, error) {
	if choice == string(ModeBoth) {
		s, err := f.Model(calibration.ModelSingle)
		if err != nil {
			return nil, err
		}
		d, err := f.Model(calibration.ModelDouble)
		if err != nil {
			return nil, err
		}
		return NewApplier(ModeBoth, s, d)
	}
	m, err := f.Resolve(choice)
	if err != nil {
		return nil, err
	}
	return NewApplier(Mode(m.Name()), m)
}

func (a *Applier) Mode() Mode { return a.mode }

// Columns returns the names appended to the input header.
func (a *Applier) Columns() []string {
	if a.mode == ModeBoth {
		return []string{
			"student_single_mps",
			"student_double_mps",
			"err_single_mps",
			"err_double_mps",
			"err_single_pct",
			"err_double_pct",
		}
	}
	n := a.models[0].Name()
	return []string{"student_" + n + "_mps", "err_" + n + "_mps", "err_" + n + "_pct"}
}

// OutputPath names the calibrated copy of a log: run.csv → run_calibrated.csv.
func OutputPath(in string) string {
	ext := filepath.Ext(in)
	return strings.TrimSuffix(in, ext) + "_calibrated" + ext
}

// Apply copies the CSV log from r to w, appending the model columns to every
// row. Original columns and row order are preserved. Rows shorter than the
// header are padded; fields that cannot be computed are left blank.
func (a *Applier) Apply(r io.Reader, w io.Writer) (Summary, error) {
	rr := newRowReader(r)

	header, err := rr.next()
	if err == io.EOF {
		return Summary{}, fmt.Errorf("%w: empty CSV", calibration.ErrMalformedInput)
	}
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read header: %w", err)
	}
	idxStudent := indexOf(header, ColumnStudent)
	if idxStudent < 0 {
		return Summary{}, fmt.Errorf("%w: input CSV has no %q column", calibration.ErrMalformedInput, ColumnStudent)
	}
	idxGT := indexOf(header, ColumnGroundTruth)

	cw := csv.NewWriter(w)
	if err := cw.Write(append(append([]string{}, header...), a.Columns()...)); err != nil {
		return Summary{}, err
	}

	var sum Summary
	for {
		rec, err := rr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return sum, fmt.Errorf("failed to read line %d: %w", rr.line+1, err)
		}
		if len(rec) == 0 {
			continue
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}

		row := a.evaluate(rec, idxStudent, idxGT)
		sum.Rows++
		sum.Data = append(sum.Data, row)

		if err := cw.Write(append(rec, a.format(row)...)); err != nil {
			return sum, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return sum, err
	}

	sum.Models = a.summarise(sum.Data)
	return sum, nil
}

func (a *Applier) evaluate(rec []string, idxStudent, idxGT int) Row {
	row := Row{AngleDeg: parseField(rec[idxStudent])}
	if idxGT >= 0 && idxGT < len(rec) {
		if v := parseField(rec[idxGT]); !math.IsNaN(v) {
			row.GroundTruthMPS, row.HasGroundTruth = v, true
		}
	}
	row.Predicted = make([]float64, len(a.models))
	for i, m := range a.models {
		if math.IsNaN(row.AngleDeg) {
			row.Predicted[i] = math.NaN()
			continue
		}
		row.Predicted[i] = calibration.Speed(row.AngleDeg, m)
	}
	return row
}

func (a *Applier) format(row Row) []string {
	n := len(a.models)
	speeds := make([]string, n)
	errs := make([]string, n)
	pcts := make([]string, n)
	for i, v := range row.Predicted {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		speeds[i] = strconv.FormatFloat(v, 'f', 6, 64)
		if !row.HasGroundTruth {
			continue
		}
		e := v - row.GroundTruthMPS
		errs[i] = strconv.FormatFloat(e, 'f', 6, 64)
		if row.GroundTruthMPS != 0 {
			pcts[i] = strconv.FormatFloat(e/row.GroundTruthMPS*100, 'f', 3, 64)
		}
	}
	if a.mode == ModeBoth {
		return []string{speeds[0], speeds[1], errs[0], errs[1], pcts[0], pcts[1]}
	}
	return []string{speeds[0], errs[0], pcts[0]}
}

func (a *Applier) summarise(rows []Row) []ModelSummary {
	out := make([]ModelSummary, len(a.models))
	for i, m := range a.models {
		var truth, pred []float64
		for _, r := range rows {
			v := r.Predicted[i]
			if !r.HasGroundTruth || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			truth = append(truth, r.GroundTruthMPS)
			pred = append(pred, v)
		}
		out[i] = ModelSummary{
			Model:    m.Name(),
			Compared: len(truth),
			Metrics:  calibration.ComputeMetrics(truth, pred),
		}
	}
	return out
}

// ApplyFile replays the log at in and writes the calibrated copy next to it.
func (a *Applier) ApplyFile(in string) (string, Summary, error) {
	src, err := os.Open(in)
	if err != nil {
		return "", Summary{}, fmt.Errorf("failed to open log: %w", err)
	}
	defer src.Close()

	out := OutputPath(in)
	dst, err := os.Create(out)
	if err != nil {
		return "", Summary{}, fmt.Errorf("failed to create %s: %w", out, err)
	}

	sum, err := a.Apply(src, dst)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out)
		return "", sum, err
	}
	return out, sum, nil
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if strings.TrimSpace(h) == name {
			return i
		}
	}
	return -1
}

// parseField returns NaN for blank or unparseable text.
func parseField(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
