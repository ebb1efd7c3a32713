package main

import (
	"bytes"
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/wind.report/internal/monitoring"
	"github.com/banshee-data/wind.report/internal/serialmux"
	"github.com/banshee-data/wind.report/internal/timeutil"
	"github.com/banshee-data/wind.report/internal/units"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestValueLogger(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	var out bytes.Buffer

	vl, err := newValueLogger(&out, "ground_truth_mps", units.MPS, clock)
	if err != nil {
		t.Fatalf("newValueLogger() error = %v", err)
	}
	if err := vl.Log(3.25); err != nil {
		t.Fatalf("Log() error = %v", err)
	}
	clock.Advance(250 * time.Millisecond)
	if err := vl.Log(4); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	want := "timestamp_iso,timestamp_epoch,ground_truth_mps\n" +
		"2026-03-01T12:00:00.000000,1772366400.000000,3.25\n" +
		"2026-03-01T12:00:00.250000,1772366400.250000,4\n"
	if got := out.String(); got != want {
		t.Errorf("output =\n%s\nwant\n%s", got, want)
	}
}

func TestValueLogger_ConvertsUnits(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	var out bytes.Buffer

	vl, err := newValueLogger(&out, "student_mps", units.Knots, clock)
	if err != nil {
		t.Fatalf("newValueLogger() error = %v", err)
	}
	if err := vl.Log(10); err != nil {
		t.Fatalf("Log() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || lines[0] != "timestamp_iso,timestamp_epoch,student_mps" {
		t.Fatalf("output = %q", out.String())
	}
	fields := strings.Split(lines[1], ",")
	got, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		t.Fatalf("value %q: %v", fields[2], err)
	}
	if math.Abs(got-5.144444) > 1e-6 {
		t.Errorf("10 kt logged as %v m/s, want 5.144444", got)
	}
}

func TestRun(t *testing.T) {
	monitoring.SetLogger(nil)
	defer monitoring.SetLogger(nil)

	port := serialmux.NewTestableSerialPort()
	port.BlockReads = true
	mux := serialmux.NewSerialMux(port)
	defer mux.Close()

	var out lockedBuffer
	vl, err := newValueLogger(&out, "ground_truth_mps", units.MPS, timeutil.RealClock{})
	if err != nil {
		t.Fatalf("newValueLogger() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan serialmux.ValueCounts, 1)
	go func() { result <- run(ctx, mux, vl) }()

	// Keep feeding until two values have been written.
	deadline := time.Now().Add(2 * time.Second)
	for strings.Count(out.String(), ",2.5\n") < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("values never logged, output = %q", out.String())
		}
		port.AddReadData([]byte("noise\r\n2.5\r\n"))
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case counts := <-result:
		if counts.Values < 2 {
			t.Errorf("counts = %+v, want at least 2 values", counts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancel")
	}
	if strings.Contains(out.String(), "noise") {
		t.Errorf("unparsable line logged: %q", out.String())
	}
}

func TestRun_KeepsEveryLine(t *testing.T) {
	monitoring.SetLogger(nil)
	defer monitoring.SetLogger(nil)

	// Data is queued before run starts and the port reports EOF once it is
	// read, so run returns on its own.
	port := serialmux.NewTestableSerialPort()
	port.AddReadData([]byte("1.5\r\nnoise\r\n2.5\r\n3.5\r\n"))
	mux := serialmux.NewSerialMux(port)
	defer mux.Close()

	var out lockedBuffer
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	vl, err := newValueLogger(&out, "ground_truth_mps", units.MPS, clock)
	if err != nil {
		t.Fatalf("newValueLogger() error = %v", err)
	}

	result := make(chan serialmux.ValueCounts, 1)
	go func() { result <- run(context.Background(), mux, vl) }()

	select {
	case counts := <-result:
		if want := (serialmux.ValueCounts{Values: 3, Skipped: 1}); counts != want {
			t.Errorf("counts = %+v, want %+v", counts, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return at end of input")
	}

	want := "timestamp_iso,timestamp_epoch,ground_truth_mps\n" +
		"2026-03-01T12:00:00.000000,1772366400.000000,1.5\n" +
		"2026-03-01T12:00:00.000000,1772366400.000000,2.5\n" +
		"2026-03-01T12:00:00.000000,1772366400.000000,3.5\n"
	if got := out.String(); got != want {
		t.Errorf("output =\n%s\nwant\n%s", got, want)
	}
}
