package main

import (
	"context"

	"github.com/banshee-data/wind.report/internal/db"
	"github.com/banshee-data/wind.report/internal/tracking"
)

// sessionRecorder stores pipeline samples under one db session.
type sessionRecorder struct {
	db        *db.DB
	sessionID string
}

func (r *sessionRecorder) RecordSample(ctx context.Context, s tracking.Sample) error {
	return r.db.InsertSample(ctx, db.SampleRow{
		SessionID:   r.sessionID,
		Time:        s.Timestamp,
		RawDeg:      s.RawDeg,
		SmoothedDeg: s.SmoothedDeg,
		SpeedMPS:    s.SpeedMPS,
		Value:       s.Value,
		PivotX:      s.Pair.Pivot.X,
		PivotY:      s.Pair.Pivot.Y,
		BobX:        s.Pair.Bob.X,
		BobY:        s.Pair.Bob.Y,
	})
}
