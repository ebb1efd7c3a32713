package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/banshee-data/wind.report/internal/calibration"
	"github.com/banshee-data/wind.report/internal/config"
	"github.com/banshee-data/wind.report/internal/tracking"
	"github.com/banshee-data/wind.report/internal/vision"
)

// overrides holds command-line values that take precedence over the config
// file. Zero values (and -1 for the camera) leave the file value alone.
type overrides struct {
	camera      int
	video       string
	output      string
	units       string
	model       string
	calibration string
	serial      string
	stdout      bool
	mqttBroker  string
	db          string
	listen      string
}

func (o overrides) apply(cfg *config.PendulumConfig) {
	setString := func(dst **string, v string) {
		if v != "" {
			*dst = &v
		}
	}
	if o.camera >= 0 {
		camera := o.camera
		cfg.CameraID = &camera
	}
	setString(&cfg.VideoPath, o.video)
	setString(&cfg.Output, o.output)
	setString(&cfg.Units, o.units)
	setString(&cfg.Model, o.model)
	setString(&cfg.CalibrationPath, o.calibration)
	setString(&cfg.SerialPort, o.serial)
	setString(&cfg.MQTTBroker, o.mqttBroker)
	setString(&cfg.DBPath, o.db)
	setString(&cfg.DebugListen, o.listen)
	if o.stdout {
		stdout := true
		cfg.Stdout = &stdout
	}
}

// initialRange is the colour window the tracker starts with.
func initialRange(cfg *config.PendulumConfig) vision.HSVRange {
	h, s, v := cfg.GetHSVCenter()
	return vision.NewHSVRange(vision.HSV{H: h, S: s, V: v}, tolerance(cfg))
}

func tolerance(cfg *config.PendulumConfig) vision.Tolerance {
	h, s, v := cfg.GetHSVTolerance()
	return vision.Tolerance{H: h, S: s, V: v}
}

// pipelineOptions maps the config onto tracking options. model may be nil
// in angle mode.
func pipelineOptions(cfg *config.PendulumConfig, model calibration.Model) tracking.Options {
	erode, dilate, kernel := cfg.GetMorphology()

	opts := tracking.DefaultOptions()
	opts.Tolerance = tolerance(cfg)
	opts.Extractor = vision.ExtractorParams{
		ErodeIterations:  erode,
		DilateIterations: dilate,
		KernelSize:       kernel,
		MinArea:          cfg.GetMinBlobArea(),
	}
	opts.Alpha = cfg.GetAlpha()
	opts.Output = tracking.Output(cfg.GetOutput())
	opts.Units = cfg.GetUnits()
	opts.Model = model
	opts.EmitTimeout = cfg.GetEmitTimeout()
	return opts
}

// loadModel resolves the calibration model named in the config. Speed
// output cannot run without one. In angle mode a missing calibration file
// is fine and the model is only used to record speeds alongside the angle.
func loadModel(cfg *config.PendulumConfig) (calibration.Model, error) {
	path := cfg.GetCalibrationPath()
	f, err := calibration.Load(path)
	if err != nil {
		if cfg.GetOutput() == string(tracking.OutputAngle) && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load calibration: %w", err)
	}

	m, err := f.Resolve(cfg.GetModel())
	if err != nil {
		if cfg.GetOutput() == string(tracking.OutputAngle) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
