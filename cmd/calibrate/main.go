// Command calibrate computes the single-model constant C from hand-held
// (angle, wind speed) readings: V = C * sqrt(tan(angle)).
package main

import (
	"bufio"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/wind.report/internal/calibration"
	"github.com/banshee-data/wind.report/internal/version"
)

var (
	angle       = flag.Float64("angle", math.NaN(), "Single angle measurement (degrees)")
	wind        = flag.Float64("wind", math.NaN(), "Single wind speed measurement (m/s)")
	pairsFile   = flag.String("file", "", "CSV file with angle,wind_speed pairs (header optional)")
	show        = flag.Bool("show", false, "Show the current calibration")
	calFile     = flag.String("calibration", calibration.DefaultFile, "Calibration file to read and write")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("calibrate"))
		return
	}

	c := &calibrator{in: bufio.NewReader(os.Stdin), out: os.Stdout, path: *calFile}

	var err error
	switch {
	case *show:
		err = c.show()
	case !math.IsNaN(*angle) || !math.IsNaN(*wind):
		if math.IsNaN(*angle) || math.IsNaN(*wind) {
			err = errors.New("both --angle and --wind must be provided")
			break
		}
		err = c.single(*angle, *wind)
	case *pairsFile != "":
		err = c.batch(*pairsFile)
	default:
		err = c.interactive()
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}

type calibrator struct {
	in   *bufio.Reader
	out  io.Writer
	path string
}

// prompt writes msg and returns the next trimmed input line. io.EOF means
// the operator closed input.
func (c *calibrator) prompt(msg string) (string, error) {
	fmt.Fprint(c.out, msg)
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (c *calibrator) save(ms []calibration.Measurement, notes string) error {
	s, err := calibration.SummarizeConstants(ms)
	if err != nil {
		return err
	}
	f := calibration.ConstantFile(s, ms)
	if notes != "" {
		f.Notes = notes
	}
	if err := f.Save(c.path); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Calibration saved to %s\n", c.path)
	fmt.Fprintf(c.out, "  Calibration constant C = %.6f\n", s.Mean)
	fmt.Fprintf(c.out, "  Based on %d measurements\n", s.N)
	return nil
}

func (c *calibrator) show() error {
	f, err := calibration.Load(c.path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(c.out, "No calibration found.\nExpected file: %s\n", c.path)
		return nil
	}
	if err != nil {
		return err
	}
	m, err := f.Model(calibration.ModelSingle)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Current calibration constant: C = %.6f\n", m.(calibration.Single).C)
	if f.NumSamples > 0 {
		fmt.Fprintf(c.out, "Based on %d measurements\n", f.NumSamples)
	}
	if f.RecommendedModel != "" {
		fmt.Fprintf(c.out, "Recommended model: %s\n", f.RecommendedModel)
	}
	if f.Notes != "" {
		fmt.Fprintf(c.out, "Notes: %s\n", f.Notes)
	}
	return nil
}

func (c *calibrator) single(angleDeg, windMPS float64) error {
	C, err := calibration.SampleConstant(angleDeg, windMPS)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Calibration constant: C = %.6f\n", C)
	fmt.Fprintf(c.out, "(Based on angle=%g°, wind=%g m/s)\n", angleDeg, windMPS)

	answer, err := c.prompt("Save this calibration? [y/N]: ")
	if err != nil && err != io.EOF {
		return err
	}
	if strings.EqualFold(answer, "y") {
		return c.save([]calibration.Measurement{{AngleDeg: angleDeg, GroundTruthMPS: windMPS}}, "Single measurement")
	}
	return nil
}

func (c *calibrator) batch(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer fh.Close()

	ms, err := loadPairs(fh)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	s, err := calibration.SummarizeConstants(ms)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Loaded %d measurements from %s\n", len(ms), path)
	fmt.Fprintf(c.out, "Calculated calibration constant: C = %.6f\n", s.Mean)
	return c.save(ms, "Loaded from "+path)
}

// loadPairs reads angle,wind_speed rows. A first row that does not parse is
// taken as a header; rows with fewer than two fields are skipped.
func loadPairs(r io.Reader) ([]calibration.Measurement, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var ms []calibration.Measurement
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 2 {
			continue
		}
		a, errA := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		w, errW := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if errA != nil || errW != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: invalid measurement %q", line, strings.Join(rec, ","))
		}
		ms = append(ms, calibration.Measurement{AngleDeg: a, GroundTruthMPS: w})
	}
	if len(ms) == 0 {
		return nil, fmt.Errorf("%w: no valid measurements", calibration.ErrInsufficientData)
	}
	return ms, nil
}

func (c *calibrator) interactive() error {
	fmt.Fprintln(c.out, "PENDULUM CALIBRATION - INTERACTIVE MODE")
	fmt.Fprintln(c.out, "Formula: V = C * sqrt(tan(angle))")
	fmt.Fprintln(c.out, "Enter paired angle (degrees) and wind speed (m/s) readings; type 'done' when finished.")

	var ms []calibration.Measurement
	for {
		n := len(ms) + 1
		a, err := c.readNumber(fmt.Sprintf("Measurement %d - Angle (degrees): ", n))
		if err != nil {
			if errors.Is(err, errDone) {
				break
			}
			return err
		}
		w, err := c.readNumber(fmt.Sprintf("Measurement %d - Wind speed (m/s): ", n))
		if err != nil {
			if errors.Is(err, errDone) {
				break
			}
			return err
		}
		C, err := calibration.SampleConstant(a, w)
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v. Please try again.\n", err)
			continue
		}
		fmt.Fprintf(c.out, "  C for this sample: %.6f\n", C)
		ms = append(ms, calibration.Measurement{AngleDeg: a, GroundTruthMPS: w})
	}

	if len(ms) == 0 {
		fmt.Fprintln(c.out, "No measurements entered.")
		return nil
	}

	s, err := calibration.SummarizeConstants(ms)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "\nNumber of measurements: %d\n", s.N)
	fmt.Fprintf(c.out, "Average C: %.6f\n", s.Mean)
	if s.N > 1 {
		fmt.Fprintf(c.out, "Standard deviation: %.6f\n", s.StdDev)
		fmt.Fprintf(c.out, "C range: %.6f to %.6f\n", s.Min, s.Max)
	}

	notes, err := c.prompt("Optional notes (e.g., weather conditions, setup): ")
	if err != nil && err != io.EOF {
		return err
	}
	return c.save(ms, notes)
}

var errDone = errors.New("done")

// readNumber prompts until a number is entered. "done" or closed input ends
// the session.
func (c *calibrator) readNumber(msg string) (float64, error) {
	for {
		s, err := c.prompt(msg)
		if err == io.EOF || strings.EqualFold(s, "done") {
			return 0, errDone
		}
		if err != nil {
			return 0, err
		}
		v, perr := strconv.ParseFloat(s, 64)
		if perr == nil {
			return v, nil
		}
		fmt.Fprintf(c.out, "Error: %q is not a number. Please try again.\n", s)
	}
}
