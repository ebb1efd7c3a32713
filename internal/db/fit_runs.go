package db

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/wind.report/internal/calibration"
)

// FitRun is a stored calibration fit with the document it produced.
type FitRun struct {
	ID               string
	Created          time.Time
	Source           string
	NumSamples       int
	RecommendedModel string
	CalibrationJSON  string
}

// File decodes the stored calibration document.
func (r FitRun) File() (*calibration.File, error) {
	return calibration.Decode(bytes.NewReader([]byte(r.CalibrationJSON)))
}

// RecordFitRun stores f as fitted from numSamples measurements read from
// source.
func (db *DB) RecordFitRun(ctx context.Context, source string, numSamples int, f *calibration.File) (FitRun, error) {
	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		return FitRun{}, fmt.Errorf("failed to encode calibration: %w", err)
	}

	run := FitRun{
		ID:               uuid.NewString(),
		Created:          time.Now().UTC(),
		Source:           source,
		NumSamples:       numSamples,
		RecommendedModel: f.RecommendedModel,
		CalibrationJSON:  buf.String(),
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO fit_runs (run_id, created_unix, source, num_samples, recommended_model, calibration_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, toUnix(run.Created), run.Source, run.NumSamples, run.RecommendedModel, run.CalibrationJSON)
	if err != nil {
		return FitRun{}, fmt.Errorf("failed to record fit run: %w", err)
	}
	run.Created = fromUnix(toUnix(run.Created))
	return run, nil
}

// FitRuns lists stored fits, most recent first.
func (db *DB) FitRuns(ctx context.Context) ([]FitRun, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, created_unix, source, num_samples, COALESCE(recommended_model, ''), calibration_json
		FROM fit_runs
		ORDER BY created_unix DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []FitRun
	for rows.Next() {
		var (
			r       FitRun
			created float64
		)
		if err := rows.Scan(&r.ID, &created, &r.Source, &r.NumSamples, &r.RecommendedModel, &r.CalibrationJSON); err != nil {
			return nil, err
		}
		r.Created = fromUnix(created)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
