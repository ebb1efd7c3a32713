package main

import (
	"bufio"
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/wind.report/internal/calibration"
)

func newCalibrator(t *testing.T, input string) (*calibrator, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return &calibrator{
		in:   bufio.NewReader(strings.NewReader(input)),
		out:  &out,
		path: filepath.Join(t.TempDir(), "cal.json"),
	}, &out
}

func TestShow_NoCalibration(t *testing.T) {
	c, out := newCalibrator(t, "")
	if err := c.show(); err != nil {
		t.Fatalf("show() error = %v", err)
	}
	if !strings.Contains(out.String(), "No calibration found.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestSingle(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		c, out := newCalibrator(t, "n\n")
		if err := c.single(45, 2); err != nil {
			t.Fatalf("single() error = %v", err)
		}
		if !strings.Contains(out.String(), "C = 2.000000") {
			t.Errorf("output = %q", out.String())
		}
		if _, err := os.Stat(c.path); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("calibration written without confirmation: %v", err)
		}
	})

	t.Run("saved", func(t *testing.T) {
		c, out := newCalibrator(t, "y\n")
		if err := c.single(45, 3); err != nil {
			t.Fatalf("single() error = %v", err)
		}
		f, err := calibration.Load(c.path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if math.Abs(f.CalibrationConstant-3) > 1e-9 || f.NumSamples != 1 {
			t.Errorf("saved C=%f n=%d", f.CalibrationConstant, f.NumSamples)
		}

		out.Reset()
		if err := c.show(); err != nil {
			t.Fatalf("show() error = %v", err)
		}
		for _, want := range []string{"C = 3.000000", "Based on 1 measurements", "Notes: Single measurement"} {
			if !strings.Contains(out.String(), want) {
				t.Errorf("show output missing %q:\n%s", want, out.String())
			}
		}
	})

	t.Run("invalid", func(t *testing.T) {
		c, _ := newCalibrator(t, "")
		if err := c.single(0, 3); !errors.Is(err, calibration.ErrMalformedInput) {
			t.Errorf("single(0, 3) error = %v, want ErrMalformedInput", err)
		}
	})
}

func TestLoadPairs(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"header", "angle,wind_speed\n45,2\n30,1.5\n", 2, false},
		{"no header", "45,2\n", 1, false},
		{"short rows skipped", "45,2\n\n10\n20,1\n", 2, false},
		{"bad row", "45,2\nabc,1\n", 0, true},
		{"header only", "angle,wind_speed\n", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms, err := loadPairs(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadPairs() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(ms) != tt.want {
				t.Errorf("loadPairs() = %d measurements, want %d", len(ms), tt.want)
			}
		})
	}
}

func TestBatch(t *testing.T) {
	c, out := newCalibrator(t, "")
	pairs := filepath.Join(t.TempDir(), "pairs.csv")
	if err := os.WriteFile(pairs, []byte("angle,wind_speed\n45,2\n45,4\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := c.batch(pairs); err != nil {
		t.Fatalf("batch() error = %v", err)
	}
	if !strings.Contains(out.String(), "Loaded 2 measurements") {
		t.Errorf("output = %q", out.String())
	}

	f, err := calibration.Load(c.path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if math.Abs(f.CalibrationConstant-3) > 1e-9 {
		t.Errorf("C = %f, want 3", f.CalibrationConstant)
	}
	if f.Notes != "Loaded from "+pairs {
		t.Errorf("Notes = %q", f.Notes)
	}
	if len(f.AngleMeasurements) != 2 || len(f.WindMeasurements) != 2 {
		t.Errorf("measurements = %v / %v", f.AngleMeasurements, f.WindMeasurements)
	}

	if err := c.batch(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Error("batch() on missing file succeeded")
	}
}

func TestInteractive(t *testing.T) {
	// A non-number is re-prompted and an invalid pair is dropped.
	input := strings.Join([]string{
		"45", "2",
		"x", "45", "4",
		"0", "1",
		"done",
		"windy afternoon",
	}, "\n") + "\n"
	c, out := newCalibrator(t, input)

	if err := c.interactive(); err != nil {
		t.Fatalf("interactive() error = %v", err)
	}
	for _, want := range []string{
		"is not a number",
		"Please try again",
		"Number of measurements: 2",
		"Average C: 3.000000",
		"Standard deviation: 1.000000",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q", want)
		}
	}

	f, err := calibration.Load(c.path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if f.NumSamples != 2 || f.Notes != "windy afternoon" {
		t.Errorf("saved n=%d notes=%q", f.NumSamples, f.Notes)
	}
}

func TestInteractive_NoMeasurements(t *testing.T) {
	c, out := newCalibrator(t, "")
	if err := c.interactive(); err != nil {
		t.Fatalf("interactive() error = %v", err)
	}
	if !strings.Contains(out.String(), "No measurements entered.") {
		t.Errorf("output = %q", out.String())
	}
	if _, err := os.Stat(c.path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("calibration written with no measurements")
	}
}
