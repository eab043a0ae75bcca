package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opsless/policyscan/internal/monitor/model"
)

type EventRepo struct {
	DB *Database
}

func NewEventRepo(db *Database) *EventRepo { return &EventRepo{DB: db} }

// CreateEvents bulk-inserts detection events. Ids are generated by the
// caller, so no requery is needed afterwards.
func (r *EventRepo) CreateEvents(ctx context.Context, events []*model.Event) error {
	if len(events) == 0 {
		return nil
	}
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`INSERT INTO monitor_event
(id, alert_id, policy_id, instance_id, value, level, content, notice_result, event_time) VALUES `)
	for i, e := range events {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 9
		sb.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9))
		args = append(args, e.ID, e.AlertID, e.PolicyID, e.InstanceID,
			nullFloat(e.Value), e.Level, e.Content, e.NoticeResult, e.EventTime)
	}
	if _, err := r.DB.ExecContext(ctx, sb.String(), args...); err != nil {
		return &model.PersistenceError{Op: "create events", Err: err}
	}
	return nil
}

// CreateRawData persists one evidence row. Raw-data rows are written
// individually: the backing store fires its upload side effect only on
// per-record saves, so this must not be batched.
func (r *EventRepo) CreateRawData(ctx context.Context, raw *model.EventRawData) error {
	data, err := json.Marshal(raw.Data)
	if err != nil {
		return &model.PersistenceError{Op: "encode raw data", Err: err}
	}
	const q = `INSERT INTO monitor_event_raw_data (event_id, data) VALUES ($1, $2::jsonb)`
	if _, err := r.DB.ExecContext(ctx, q, raw.EventID, string(data)); err != nil {
		return &model.PersistenceError{Op: "create raw data", Err: err}
	}
	return nil
}

func (r *EventRepo) UpdateNoticeResults(ctx context.Context, events []*model.Event) error {
	const q = `UPDATE monitor_event SET notice_result = $2 WHERE id = $1`
	for _, e := range events {
		if _, err := r.DB.ExecContext(ctx, q, e.ID, e.NoticeResult); err != nil {
			return &model.PersistenceError{Op: "update notice result", Err: err}
		}
	}
	return nil
}

// ListByAlert serves the read API.
func (r *EventRepo) ListByAlert(ctx context.Context, alertID int64, limit int) ([]*model.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT id, alert_id, policy_id, instance_id, value, level, content, notice_result, event_time
FROM monitor_event WHERE alert_id = $1 ORDER BY event_time DESC LIMIT $2`
	rows, err := r.DB.QueryContext(ctx, q, alertID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*model.Event
	for rows.Next() {
		var (
			e     model.Event
			value sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &e.AlertID, &e.PolicyID, &e.InstanceID,
			&value, &e.Level, &e.Content, &e.NoticeResult, &e.EventTime); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if value.Valid {
			v := value.Float64
			e.Value = &v
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
