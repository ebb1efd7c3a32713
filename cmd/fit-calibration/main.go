// Command fit-calibration fits pendulum angle→wind speed models to an
// aligned log and writes the calibration file the live tracker reads.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/wind.report/internal/calibration"
	"github.com/banshee-data/wind.report/internal/db"
	"github.com/banshee-data/wind.report/internal/replay"
	"github.com/banshee-data/wind.report/internal/report"
	"github.com/banshee-data/wind.report/internal/version"
)

var (
	minSpeed    = flag.Float64("min-speed", 0.5, "Minimum ground-truth speed (m/s) to include in the fit")
	minAngleDeg = flag.Float64("min-angle-deg", 0.2, "Minimum absolute angle in degrees to include in the fit")
	models      = flag.String("models", "both", "Which models to fit: single, double or both")
	outPath     = flag.String("out", calibration.DefaultFile, "Where to write the calibration file")
	plotPath    = flag.String("plot", "", "Also draw the data and fitted curves to this image (png, svg, pdf)")
	dbPath      = flag.String("db", "", "Record the fit run in this sqlite database")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

type options struct {
	fit    calibration.FitOptions
	models string
	out    string
	plot   string
	db     string
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: fit-calibration [flags] <aligned-log.csv>\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("fit-calibration"))
		return
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	opts := options{
		fit:    calibration.FitOptions{MinSpeed: *minSpeed, MinAngleDeg: *minAngleDeg},
		models: *models,
		out:    *outPath,
		plot:   *plotPath,
		db:     *dbPath,
	}
	if err := run(context.Background(), flag.Arg(0), opts, os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}

func modelNames(choice string) ([]string, error) {
	switch choice {
	case calibration.ModelSingle, calibration.ModelDouble:
		return []string{choice}, nil
	case "both":
		return []string{calibration.ModelSingle, calibration.ModelDouble}, nil
	}
	return nil, fmt.Errorf("--models must be single, double or both, got %q", choice)
}

func run(ctx context.Context, logPath string, opts options, out io.Writer) error {
	names, err := modelNames(opts.models)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Loading data from: %s\n", logPath)
	ms, err := replay.LoadMeasurementsFile(logPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loaded %d samples (student angle deg, ground_truth_mps)\n", len(ms))

	f, results, fitErr := calibration.Fit(ms, opts.fit, names)
	for _, r := range results {
		fmt.Fprintf(out, "\nFitting %s model\n", r.Name)
		if !r.OK() {
			fmt.Fprintf(out, "  fit failed: %v\n", r.Err)
			continue
		}
		fmt.Fprintf(out, "  %s\n", r.Model.Formula())
		fmt.Fprintf(out, "  %v on %d samples\n", r.Model, r.Samples)
		fmt.Fprintf(out, "  RMSE = %.4f m/s, MAE = %.4f m/s, MAPE = %.2f%%\n",
			r.Metrics.RMSE, r.Metrics.MAE, r.Metrics.MAPEPct)
	}
	if fitErr != nil {
		return fmt.Errorf("no successful fits: %w", fitErr)
	}

	best, _ := f.Metrics(f.RecommendedModel)
	fmt.Fprintf(out, "\nRecommended model based on RMSE: %s (RMSE=%.4f m/s)\n", f.RecommendedModel, best.RMSE)

	if err := f.Save(opts.out); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved calibration to %s\n", opts.out)

	if opts.plot != "" {
		var fitted []calibration.Model
		for _, r := range results {
			if r.OK() {
				fitted = append(fitted, r.Model)
			}
		}
		if err := report.SaveFitPlot(opts.plot, ms, fitted); err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved plot to %s\n", opts.plot)
	}

	if opts.db != "" {
		database, err := db.NewDB(opts.db)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
		fr, err := database.RecordFitRun(ctx, logPath, len(ms), f)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Recorded fit run %s\n", fr.ID)
	}

	return nil
}
