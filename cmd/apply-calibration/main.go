// Command apply-calibration replays a recorded log through a calibration
// model, writing <log>_calibrated.csv with predicted speeds and errors.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/wind.report/internal/calibration"
	"github.com/banshee-data/wind.report/internal/replay"
	"github.com/banshee-data/wind.report/internal/report"
	"github.com/banshee-data/wind.report/internal/version"
)

var (
	model       = flag.String("model", calibration.ModelAuto, "Model to apply: auto, single, double or both")
	calFile     = flag.String("calibration", calibration.DefaultFile, "Calibration file written by fit-calibration")
	reportPath  = flag.String("report", "", "Also write an HTML error report to this path")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: apply-calibration [flags] <log.csv>\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("apply-calibration"))
		return
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *calFile, *model, *reportPath, os.Stdout); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(in, calPath, choice, reportOut string, out io.Writer) error {
	f, err := calibration.Load(calPath)
	if err != nil {
		return err
	}
	a, err := replay.ForFile(f, choice)
	if err != nil {
		return fmt.Errorf("%s: %w", calPath, err)
	}

	outPath, sum, err := a.ApplyFile(in)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Input log:     %s\n", in)
	fmt.Fprintf(out, "Output log:    %s\n", outPath)
	if a.Mode() == replay.ModeBoth {
		fmt.Fprintln(out, "Using both models: single and double")
	} else {
		fmt.Fprintf(out, "Using model:   %s\n", a.Mode())
	}
	fmt.Fprintf(out, "Rows:          %d\n", sum.Rows)
	for _, m := range sum.Models {
		if m.Compared == 0 {
			fmt.Fprintf(out, "  %-6s no rows with ground truth\n", m.Model)
			continue
		}
		fmt.Fprintf(out, "  %-6s n=%d MAE=%.4f m/s RMSE=%.4f m/s MAPE=%.2f%%\n",
			m.Model, m.Compared, m.Metrics.MAE, m.Metrics.RMSE, m.Metrics.MAPEPct)
	}

	if reportOut != "" {
		title := strings.TrimSuffix(filepath.Base(outPath), filepath.Ext(outPath))
		if err := writeReport(reportOut, title, sum); err != nil {
			return err
		}
		fmt.Fprintf(out, "Report:        %s\n", reportOut)
	}
	fmt.Fprintln(out, "Done.")
	return nil
}

func writeReport(path, title string, sum replay.Summary) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := report.ErrorReport(fh, title, sum); err != nil {
		fh.Close()
		os.Remove(path)
		return err
	}
	return fh.Close()
}
