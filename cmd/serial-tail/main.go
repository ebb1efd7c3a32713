// Command serial-tail logs the numeric lines of a serial device, such as the
// reference anemometer or the pendulum board, as a timestamped CSV that the
// calibration tools can align and fit.
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/wind.report/internal/serialmux"
	"github.com/banshee-data/wind.report/internal/timeutil"
	"github.com/banshee-data/wind.report/internal/units"
	"github.com/banshee-data/wind.report/internal/version"
)

var (
	port        = flag.String("port", "/dev/ttyUSB0", "Serial device to read")
	baud        = flag.Int("baud", serialmux.DefaultBaudRate, "Baud rate")
	mock        = flag.Bool("mock", false, "Read a synthetic sine wave instead of a device")
	fromUnits   = flag.String("units", units.MPS, "Units the device reports in: "+units.GetValidUnitsString())
	column      = flag.String("column", "ground_truth_mps", "CSV column name for the values")
	outPath     = flag.String("out", "", "Write the CSV here instead of stdout")
	listen      = flag.String("listen", "", "Debug HTTP listen address, e.g. localhost:8091")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("serial-tail"))
		return
	}
	if !units.IsValid(*fromUnits) {
		log.Fatalf("invalid units %q: must be one of %s", *fromUnits, units.GetValidUnitsString())
	}

	var mux serialmux.SerialMuxInterface
	if *mock {
		mux = serialmux.NewMockSerialMux(serialmux.DefaultSineWave())
	} else {
		m, err := serialmux.NewRealSerialMux(*port, serialmux.PortOptions{BaudRate: *baud})
		if err != nil {
			log.Fatalf("failed to open serial port: %v", err)
		}
		mux = m
	}
	defer mux.Close()

	var w io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatalf("failed to create %s: %v", *outPath, err)
		}
		defer f.Close()
		w = f
	}

	vl, err := newValueLogger(w, *column, *fromUnits, timeutil.RealClock{})
	if err != nil {
		log.Fatalf("failed to write header: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if *listen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveDebug(ctx, *listen, mux)
		}()
	}

	counts := run(ctx, mux, vl)
	stop()
	wg.Wait()
	log.Printf("logged %d values, skipped %d lines", counts.Values, counts.Skipped)
}

// run feeds the device lines into vl until ctx is done or the device closes.
// Lines the monitor already delivered are written before run returns.
func run(ctx context.Context, mux serialmux.SerialMuxInterface, vl *valueLogger) serialmux.ValueCounts {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Subscribe before the monitor reads its first line.
	id, ch := mux.Subscribe()
	defer mux.Unsubscribe(id)

	monitorCtx, monitorDone := context.WithCancel(context.Background())
	go func() {
		defer monitorDone()
		if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
	}()

	failed := false
	counts := serialmux.ConsumeLines(monitorCtx, ch, func(v float64) {
		if failed {
			return
		}
		if err := vl.Log(v); err != nil {
			log.Printf("failed to write value: %v", err)
			failed = true
			cancel()
		}
	})
	cancel()
	<-monitorCtx.Done()
	return counts
}

// valueLogger writes one CSV row per value in the serial logger layout:
// timestamp_iso, timestamp_epoch, then the value in m/s.
type valueLogger struct {
	w     *csv.Writer
	units string
	clock timeutil.Clock
}

func newValueLogger(w io.Writer, column, fromUnits string, clock timeutil.Clock) (*valueLogger, error) {
	vl := &valueLogger{w: csv.NewWriter(w), units: fromUnits, clock: clock}
	if err := vl.w.Write([]string{"timestamp_iso", "timestamp_epoch", column}); err != nil {
		return nil, err
	}
	vl.w.Flush()
	return vl, vl.w.Error()
}

// Log converts v to m/s and writes it stamped with the current time. Each row
// is flushed so the file can be tailed while recording.
func (vl *valueLogger) Log(v float64) error {
	now := vl.clock.Now()
	rec := []string{
		now.Format("2006-01-02T15:04:05.000000"),
		strconv.FormatFloat(float64(now.UnixMicro())/1e6, 'f', 6, 64),
		strconv.FormatFloat(units.ConvertToMPS(v, vl.units), 'f', -1, 64),
	}
	if err := vl.w.Write(rec); err != nil {
		return err
	}
	vl.w.Flush()
	return vl.w.Error()
}

func serveDebug(ctx context.Context, addr string, mux serialmux.SerialMuxInterface) {
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	server := &http.Server{Addr: addr, Handler: httpMux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("debug server failed: %v", err)
		}
	}()
	log.Printf("debug routes on http://%s/debug/", addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		server.Close()
	}
}
