package replay

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/banshee-data/wind.report/internal/calibration"
)

// LoadMeasurements reads (angle, ground truth) pairs from an aligned log.
// Both columns are required; rows that are short, blank or unparseable
// in either column are skipped.
func LoadMeasurements(r io.Reader) ([]calibration.Measurement, error) {
	rr := newRowReader(r)

	header, err := rr.next()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty CSV", calibration.ErrMalformedInput)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idxGT := indexOf(header, ColumnGroundTruth)
	idxStudent := indexOf(header, ColumnStudent)
	if idxGT < 0 || idxStudent < 0 {
		return nil, fmt.Errorf("%w: CSV needs both %q and %q columns", calibration.ErrMalformedInput, ColumnGroundTruth, ColumnStudent)
	}
	need := max(idxGT, idxStudent)

	var ms []calibration.Measurement
	for {
		rec, err := rr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read log: %w", err)
		}
		if len(rec) <= need {
			continue
		}
		gt := parseField(rec[idxGT])
		angle := parseField(rec[idxStudent])
		if math.IsNaN(gt) || math.IsNaN(angle) {
			continue
		}
		ms = append(ms, calibration.Measurement{AngleDeg: angle, GroundTruthMPS: gt})
	}
	if len(ms) == 0 {
		return nil, fmt.Errorf("%w: no valid data rows", calibration.ErrInsufficientData)
	}
	return ms, nil
}

// LoadMeasurementsFile opens path and calls LoadMeasurements.
func LoadMeasurementsFile(path string) ([]calibration.Measurement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()

	ms, err := LoadMeasurements(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ms, nil
}
