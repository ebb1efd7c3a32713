package db

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// SampleRow is one emitted pendulum sample.
type SampleRow struct {
	SessionID   string
	Time        time.Time
	RawDeg      float64
	SmoothedDeg float64
	SpeedMPS    float64
	Value       float64
	PivotX      int
	PivotY      int
	BobX        int
	BobY        int
}

// InsertSample appends one sample to its session.
func (db *DB) InsertSample(ctx context.Context, r SampleRow) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO samples (session_id, ts_unix, raw_deg, smoothed_deg, speed_mps, value, pivot_x, pivot_y, bob_x, bob_y)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, toUnix(r.Time), r.RawDeg, r.SmoothedDeg, r.SpeedMPS, r.Value,
		r.PivotX, r.PivotY, r.BobX, r.BobY)
	if err != nil {
		return fmt.Errorf("failed to insert sample: %w", err)
	}
	return nil
}

// Samples returns the samples of a session in time order.
func (db *DB) Samples(ctx context.Context, sessionID string) ([]SampleRow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT ts_unix, raw_deg, smoothed_deg, speed_mps, value,
		       COALESCE(pivot_x, 0), COALESCE(pivot_y, 0), COALESCE(bob_x, 0), COALESCE(bob_y, 0)
		FROM samples
		WHERE session_id = ?
		ORDER BY ts_unix, sample_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SampleRow
	for rows.Next() {
		r := SampleRow{SessionID: sessionID}
		var ts float64
		if err := rows.Scan(&ts, &r.RawDeg, &r.SmoothedDeg, &r.SpeedMPS, &r.Value,
			&r.PivotX, &r.PivotY, &r.BobX, &r.BobY); err != nil {
			return nil, err
		}
		r.Time = fromUnix(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ExportSessionCSV writes the emitted values of a session in the layout of a
// serial logger capture: timestamp_iso, timestamp_epoch, student_mps. The
// export can be aligned with an anemometer log and fed to the fitter.
func (db *DB) ExportSessionCSV(ctx context.Context, sessionID string, w io.Writer) (int, error) {
	if _, err := db.Session(ctx, sessionID); err != nil {
		return 0, err
	}
	samples, err := db.Samples(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp_iso", "timestamp_epoch", "student_mps"}); err != nil {
		return 0, err
	}
	for _, s := range samples {
		rec := []string{
			s.Time.Format("2006-01-02T15:04:05.000000"),
			strconv.FormatFloat(toUnix(s.Time), 'f', 6, 64),
			strconv.FormatFloat(s.Value, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(samples), cw.Error()
}
