package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/wind.report/internal/calibration"
	"github.com/banshee-data/wind.report/internal/config"
	"github.com/banshee-data/wind.report/internal/db"
	"github.com/banshee-data/wind.report/internal/monitoring"
	"github.com/banshee-data/wind.report/internal/telemetry"
	"github.com/banshee-data/wind.report/internal/tracking"
	"github.com/banshee-data/wind.report/internal/vision"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

func TestOverridesApply(t *testing.T) {
	cfg := config.EmptyPendulumConfig()
	overrides{camera: -1}.apply(cfg)
	if cfg.CameraID != nil || cfg.Output != nil || cfg.Stdout != nil {
		t.Errorf("empty overrides changed the config: %+v", cfg)
	}

	overrides{camera: 2, output: "speed", units: "kt", serial: "/dev/ttyUSB0", stdout: true}.apply(cfg)
	if cfg.GetCameraID() != 2 || cfg.GetOutput() != "speed" || cfg.GetUnits() != "kt" {
		t.Errorf("overrides not applied: camera=%d output=%s units=%s", cfg.GetCameraID(), cfg.GetOutput(), cfg.GetUnits())
	}
	if cfg.GetSerialPort() != "/dev/ttyUSB0" || !cfg.GetStdout() {
		t.Errorf("serial/stdout overrides not applied")
	}
}

func TestPipelineOptions(t *testing.T) {
	cfg := config.EmptyPendulumConfig()
	opts := pipelineOptions(cfg, calibration.Single{C: 2})

	want := vision.ExtractorParams{ErodeIterations: 1, DilateIterations: 2, KernelSize: 3, MinArea: 50}
	if diff := cmp.Diff(want, opts.Extractor); diff != "" {
		t.Errorf("extractor params mismatch (-want +got):\n%s", diff)
	}
	if opts.Alpha != 0.2 || opts.Output != tracking.OutputAngle || opts.EmitTimeout != 500*time.Millisecond {
		t.Errorf("unexpected options: %+v", opts)
	}
	if opts.Tolerance != vision.DefaultTolerance {
		t.Errorf("tolerance = %+v", opts.Tolerance)
	}

	rng := initialRange(cfg)
	if rng.Center != vision.DefaultCenter {
		t.Errorf("initial centre = %v, want %v", rng.Center, vision.DefaultCenter)
	}
}

func writeCalibration(t *testing.T, recommended string) string {
	t.Helper()
	f := calibration.NewFile()
	f.SetModel(calibration.Single{C: 2}, calibration.Metrics{}, calibration.DefaultFitOptions())
	f.SetModel(calibration.Double{A: 1.5, P: 0.6}, calibration.Metrics{}, calibration.DefaultFitOptions())
	f.RecommendedModel = recommended
	path := filepath.Join(t.TempDir(), "cal.json")
	if err := f.Save(path); err != nil {
		t.Fatalf("failed to save calibration: %v", err)
	}
	return path
}

func TestLoadModel(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.json")
	str := func(s string) *string { return &s }

	tests := []struct {
		name    string
		cfg     config.PendulumConfig
		want    calibration.Model
		wantErr bool
	}{
		{"angle without file", config.PendulumConfig{CalibrationPath: str(missing)}, nil, false},
		{"speed without file", config.PendulumConfig{CalibrationPath: str(missing), Output: str("speed")}, nil, true},
		{"auto follows recommendation", config.PendulumConfig{CalibrationPath: str(writeCalibration(t, "double"))}, calibration.Double{A: 1.5, P: 0.6}, false},
		{"explicit single", config.PendulumConfig{CalibrationPath: str(writeCalibration(t, "double")), Model: str("single")}, calibration.Single{C: 2}, false},
		{"speed auto without recommendation", config.PendulumConfig{CalibrationPath: str(writeCalibration(t, "")), Output: str("speed")}, nil, true},
		{"angle auto without recommendation", config.PendulumConfig{CalibrationPath: str(writeCalibration(t, ""))}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := loadModel(&tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("loadModel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("loadModel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func newTestPipeline(t *testing.T, rec tracking.Recorder) *tracking.Pipeline {
	t.Helper()
	p, err := tracking.NewPipeline(vision.NewHSVRange(vision.DefaultCenter, vision.DefaultTolerance),
		tracking.DefaultOptions(), telemetry.NewWriterEmitter(io.Discard), rec)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestSessionRecorder(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "rec.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	session, err := database.StartSession(ctx, db.Session{Output: "angle", Units: "mps"})
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	p := newTestPipeline(t, &sessionRecorder{db: database, sessionID: session.ID})
	pair := vision.TrackedPair{Pivot: vision.Point{X: 100, Y: 50}, Bob: vision.Point{X: 100, Y: 250}}
	if _, ok := p.Step(ctx, pair, true); !ok {
		t.Fatal("Step produced no sample")
	}

	rows, err := database.Samples(ctx, session.ID)
	if err != nil {
		t.Fatalf("Samples failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 recorded sample, got %d", len(rows))
	}
	if rows[0].PivotY != 50 || rows[0].BobY != 250 || rows[0].RawDeg != 0 {
		t.Errorf("unexpected recorded sample: %+v", rows[0])
	}
	if st := p.Stats(); st.RecordErrors != 0 {
		t.Errorf("record errors = %d", st.RecordErrors)
	}
}

func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func TestRoutes(t *testing.T) {
	p := newTestPipeline(t, nil)
	mux := http.NewServeMux()
	attachRoutes(mux, p, vision.DefaultTolerance)

	pair := vision.TrackedPair{Pivot: vision.Point{X: 100, Y: 50}, Bob: vision.Point{X: 150, Y: 100}}
	p.Step(context.Background(), pair, true)

	t.Run("status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/status", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status code = %d", rec.Code)
		}
		var st tracking.Stats
		if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
			t.Fatalf("failed to decode stats: %v", err)
		}
		// alpha 0.2 from a 0° start on a 45° frame
		if st.Frames != 1 || st.Emitted != 1 || math.Abs(st.SmoothedDeg-9) > 1e-9 {
			t.Errorf("unexpected stats: %+v", st)
		}
	})

	t.Run("snapshot before any frame", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/snapshot", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status code = %d, want 404", rec.Code)
		}
	})

	t.Run("pick-color before any frame", func(t *testing.T) {
		form := url.Values{"x": {"10"}, "y": {"10"}}
		req := localHostRequest(http.MethodPost, "/debug/pick-color", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusConflict {
			t.Errorf("status code = %d, want 409", rec.Code)
		}
	})

	t.Run("pick-color bad coordinates", func(t *testing.T) {
		form := url.Values{"x": {"left"}, "y": {"10"}}
		req := localHostRequest(http.MethodPost, "/debug/pick-color", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status code = %d, want 400", rec.Code)
		}
	})

	t.Run("set-range", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, localHostRequest(http.MethodPost, "/debug/set-range", strings.NewReader(`{"h":60,"s":200,"v":180}`)))
		if rec.Code != http.StatusOK {
			t.Fatalf("status code = %d: %s", rec.Code, rec.Body.String())
		}
		want := vision.NewHSVRange(vision.HSV{H: 60, S: 200, V: 180}, vision.DefaultTolerance)
		if diff := cmp.Diff(want, p.Range()); diff != "" {
			t.Errorf("range mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("set-range out of bounds", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, localHostRequest(http.MethodPost, "/debug/set-range", strings.NewReader(`{"h":200,"s":0,"v":0}`)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status code = %d, want 400", rec.Code)
		}
	})

	t.Run("set-range wrong method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/set-range", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status code = %d, want 405", rec.Code)
		}
	})
}

func TestRunSubcommand(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "cmd.db")

	database, err := db.NewDB(dbPath)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	session, err := database.StartSession(ctx, db.Session{Started: start, Output: "angle", Units: "mps"})
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if err := database.InsertSample(ctx, db.SampleRow{SessionID: session.ID, Time: start, SmoothedDeg: 7.5, Value: 7.5}); err != nil {
		t.Fatalf("InsertSample failed: %v", err)
	}
	database.Close()

	var out bytes.Buffer
	if err := runSubcommand(ctx, []string{"sessions"}, dbPath, &out); err != nil {
		t.Fatalf("sessions failed: %v", err)
	}
	if !strings.Contains(out.String(), session.ID) || !strings.Contains(out.String(), "open") {
		t.Errorf("sessions output missing the session: %q", out.String())
	}

	out.Reset()
	if err := runSubcommand(ctx, []string{"export", session.ID}, dbPath, &out); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	want := "timestamp_iso,timestamp_epoch,student_mps\n2026-03-01T12:00:00.000000,1772366400.000000,7.5\n"
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("export mismatch (-want +got):\n%s", diff)
	}

	outPath := filepath.Join(t.TempDir(), "session.csv")
	out.Reset()
	if err := runSubcommand(ctx, []string{"export", session.ID, outPath}, dbPath, &out); err != nil {
		t.Fatalf("export to file failed: %v", err)
	}
	if data, err := os.ReadFile(outPath); err != nil || string(data) != want {
		t.Errorf("exported file = %q, %v", data, err)
	}

	for _, args := range [][]string{{"export"}, {"replay"}, {"export", session.ID, "/etc/session.csv"}} {
		if err := runSubcommand(ctx, args, dbPath, io.Discard); err == nil {
			t.Errorf("runSubcommand(%v) should fail", args)
		}
	}
	if err := runSubcommand(ctx, []string{"sessions"}, "", io.Discard); err == nil {
		t.Error("runSubcommand without a database should fail")
	}
}
