package scan

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/opsless/policyscan/internal/monitor/model"
)

// EventRecorder persists the audit trail of a run: one event row per
// scan event, plus a raw-data row per abnormal event carrying the
// series that produced it.
type EventRecorder struct {
	events EventStore
}

func NewEventRecorder(events EventStore) *EventRecorder { return &EventRecorder{events: events} }

func newEventID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Record writes events in bulk, then raw data one row at a time. Events
// with an unresolved alert are dropped with a log line rather than
// written orphaned. Raw-data rows are written individually because each
// insert triggers a downstream upload per record.
func (r *EventRecorder) Record(ctx context.Context, sc *ScanContext, events []*model.ScanEvent) ([]*model.Event, error) {
	rows := make([]*model.Event, 0, len(events))
	raws := make([]*model.EventRawData, 0, len(events))

	for _, e := range events {
		if e.AlertID == 0 {
			log.Warn().
				Int64("policy", sc.Policy.ID).
				Str("instance", e.InstanceID).
				Msg("dropping event without alert")
			continue
		}
		row := &model.Event{
			ID:         newEventID(),
			AlertID:    e.AlertID,
			PolicyID:   sc.Policy.ID,
			InstanceID: e.InstanceID,
			Level:      e.Level,
			Value:      e.Value,
			Content:    e.Content,
			EventTime:  sc.RunTime,
		}
		e.EventID = row.ID
		rows = append(rows, row)
		if e.RawData != nil && e.Abnormal() {
			raws = append(raws, &model.EventRawData{EventID: row.ID, Data: e.RawData})
		}
	}

	if len(rows) == 0 {
		return nil, nil
	}
	start := time.Now()
	if err := r.events.CreateEvents(ctx, rows); err != nil {
		return nil, err
	}
	eventsCreatedTotal.Add(float64(len(rows)))
	log.Debug().
		Int("events", len(rows)).
		Dur("elapsed", time.Since(start)).
		Msg("created events")

	for _, raw := range raws {
		if err := r.events.CreateRawData(ctx, raw); err != nil {
			log.Error().Err(err).Str("event", raw.EventID).Msg("failed to save event raw data")
		}
	}
	return rows, nil
}
