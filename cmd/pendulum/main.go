// Command pendulum tracks a two-pin pendulum with a camera and streams its
// angle, or the calibrated wind speed, to serial, MQTT and stdout sinks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/wind.report/internal/calibration"
	"github.com/banshee-data/wind.report/internal/config"
	"github.com/banshee-data/wind.report/internal/db"
	"github.com/banshee-data/wind.report/internal/monitoring"
	"github.com/banshee-data/wind.report/internal/serialmux"
	"github.com/banshee-data/wind.report/internal/telemetry"
	"github.com/banshee-data/wind.report/internal/tracking"
	"github.com/banshee-data/wind.report/internal/units"
	"github.com/banshee-data/wind.report/internal/version"
)

var (
	configPath  = flag.String("config", "", "Pendulum config JSON (built-in defaults when empty)")
	camera      = flag.Int("camera", -1, "Camera index (overrides config)")
	video       = flag.String("video", "", "Replay a recorded video instead of the camera")
	output      = flag.String("output", "", "Emit the smoothed angle or calibrated speed: angle or speed")
	speedUnits  = flag.String("units", "", "Speed units: "+units.GetValidUnitsString())
	model       = flag.String("model", "", "Calibration model: auto, single or double")
	calFile     = flag.String("calibration", "", "Calibration file (default "+calibration.DefaultFile+")")
	serialPort  = flag.String("serial", "", "Serial device for telemetry, e.g. /dev/ttyAMA0")
	stdout      = flag.Bool("stdout", false, "Also print every value to stdout")
	mqttBroker  = flag.String("mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883")
	dbPath      = flag.String("db", "", "Record sessions and samples to this sqlite file")
	listen      = flag.String("listen", "", "Debug HTTP listen address (default localhost:8090)")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: pendulum [flags]
       pendulum [flags] migrate <up|down|status|force N>
       pendulum [flags] sessions
       pendulum [flags] export <session-id> [out.csv]

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("pendulum"))
		return
	}

	cfg := config.EmptyPendulumConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadPendulumConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	overrides{
		camera:      *camera,
		video:       *video,
		output:      *output,
		units:       *speedUnits,
		model:       *model,
		calibration: *calFile,
		serial:      *serialPort,
		stdout:      *stdout,
		mqttBroker:  *mqttBroker,
		db:          *dbPath,
		listen:      *listen,
	}.apply(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flag.NArg() > 0 {
		if err := runSubcommand(ctx, flag.Args(), cfg.GetDBPath(), os.Stdout); err != nil {
			log.Fatalf("%s: %v", flag.Arg(0), err)
		}
		return
	}

	if err := run(ctx, stop, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, stop context.CancelFunc, cfg *config.PendulumConfig) error {
	log.Printf("%s starting", version.String("pendulum"))

	m, err := loadModel(cfg)
	if err != nil {
		return err
	}
	if m != nil {
		monitoring.Logf("using calibration %v", m)
	} else {
		monitoring.Logf("no calibration model loaded; emitting angles only")
	}

	// Telemetry sinks
	var sinks telemetry.Multi
	var serialMux serialmux.SerialMuxInterface = serialmux.NewDisabledSerialMux()
	if port := cfg.GetSerialPort(); port != "" {
		sm, err := serialmux.NewRealSerialMux(port, serialmux.PortOptions{BaudRate: cfg.GetBaudRate()})
		if err != nil {
			return fmt.Errorf("failed to open telemetry port: %w", err)
		}
		serialMux = sm
		sinks = append(sinks, telemetry.NewSerialEmitter(sm))
		log.Printf("serial telemetry on %s at %d baud", port, cfg.GetBaudRate())
	}
	defer serialMux.Close()

	if broker, topic, clientID := cfg.GetMQTT(); broker != "" {
		valueUnits := "deg"
		if cfg.GetOutput() == string(tracking.OutputSpeed) {
			valueUnits = cfg.GetUnits()
		}
		me, err := telemetry.DialMQTT(telemetry.MQTTOptions{
			Broker:   broker,
			Topic:    topic,
			ClientID: clientID,
			Units:    valueUnits,
		})
		if err != nil {
			return err
		}
		defer me.Close()
		sinks = append(sinks, me)
		log.Printf("MQTT telemetry to %s topic %s", broker, topic)
	}

	if cfg.GetStdout() || len(sinks) == 0 {
		sinks = append(sinks, telemetry.NewWriterEmitter(os.Stdout))
	}

	// Optional recording
	rng := initialRange(cfg)
	var rec tracking.Recorder
	var database *db.DB
	if path := cfg.GetDBPath(); path != "" {
		if database, err = db.NewDB(path); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()

		modelName := ""
		if m != nil {
			modelName = m.Name()
		}
		session, err := database.StartSession(ctx, db.Session{
			Output:   cfg.GetOutput(),
			Units:    cfg.GetUnits(),
			Model:    modelName,
			HSVRange: rng.String(),
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := database.EndSession(context.Background(), session.ID, time.Now()); err != nil {
				log.Printf("failed to close session: %v", err)
			}
		}()
		rec = &sessionRecorder{db: database, sessionID: session.ID}
		log.Printf("recording session %s to %s", session.ID, path)
	}

	var src *tracking.CaptureSource
	if v := cfg.GetVideoPath(); v != "" {
		src, err = tracking.OpenVideo(v)
	} else {
		w, h := cfg.GetFrameSize()
		src, err = tracking.OpenCamera(cfg.GetCameraID(), w, h)
	}
	if err != nil {
		return err
	}
	defer src.Close()

	p, err := tracking.NewPipeline(rng, pipelineOptions(cfg, m), sinks, rec)
	if err != nil {
		return err
	}
	defer p.Close()

	var wg sync.WaitGroup

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := serialMux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// frame loop; a finished video or a dead camera ends the process
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		if err := p.Run(ctx, src); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("tracking stopped: %v", err)
		}
		log.Printf("tracking routine terminated: %+v", p.Stats())
	}()

	if addr := cfg.GetDebugListen(); addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()

			mux := http.NewServeMux()
			attachRoutes(mux, p, tolerance(cfg))
			serialMux.AttachAdminRoutes(mux)
			if database != nil {
				database.AttachAdminRoutes(mux)
			}

			server := &http.Server{Addr: addr, Handler: mux}
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
				log.Printf("HTTP server shutdown error: %v", err)
				server.Close()
			}
			log.Printf("HTTP server routine stopped")
		}()
	}

	wg.Wait()
	log.Printf("Graceful shutdown complete")
	return nil
}
