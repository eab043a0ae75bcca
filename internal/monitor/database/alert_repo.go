package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/opsless/policyscan/internal/monitor/model"
)

type AlertRepo struct {
	DB *Database
}

func NewAlertRepo(db *Database) *AlertRepo { return &AlertRepo{DB: db} }

const alertColumns = `id, policy_id, instance_id, instance_name, alert_type, level,
	value, content, status, start_event_time, end_event_time, info_event_count, operator`

// ActiveAlerts returns status=new alerts for the policy, optionally
// restricted to an instance scope.
func (r *AlertRepo) ActiveAlerts(ctx context.Context, policyID int64, instanceIDs []string) ([]*model.Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM monitor_alert WHERE policy_id = $1 AND status = $2`
	args := []any{policyID, model.AlertStatusNew}
	if instanceIDs != nil {
		q += ` AND instance_id = ANY($3)`
		args = append(args, pq.Array(instanceIDs))
	}
	q += ` ORDER BY id`

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("active alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// CreateAlerts bulk-inserts and returns the created rows. The insert does
// not echo generated ids, so rows are re-queried by their natural key
// (policy, instance set, start_event_time, status=new) ordered by id.
func (r *AlertRepo) CreateAlerts(ctx context.Context, alerts []*model.Alert) ([]*model.Alert, error) {
	if len(alerts) == 0 {
		return nil, nil
	}

	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`INSERT INTO monitor_alert
(policy_id, instance_id, instance_name, alert_type, level, value, content, status, start_event_time, info_event_count, operator) VALUES `)
	for i, a := range alerts {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 11
		sb.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11))
		args = append(args, a.PolicyID, a.InstanceID, a.InstanceName, a.AlertType, a.Level,
			nullFloat(a.Value), a.Content, a.Status, a.StartEventTime, a.InfoEventCount, a.Operator)
	}
	if _, err := r.DB.ExecContext(ctx, sb.String(), args...); err != nil {
		return nil, &model.PersistenceError{Op: "create alerts", Err: err}
	}

	ids := make([]string, 0, len(alerts))
	for _, a := range alerts {
		ids = append(ids, a.InstanceID)
	}
	const q = `SELECT ` + alertColumns + ` FROM monitor_alert
WHERE policy_id = $1 AND instance_id = ANY($2) AND start_event_time = $3 AND status = $4
ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, q, alerts[0].PolicyID, pq.Array(ids), alerts[0].StartEventTime, model.AlertStatusNew)
	if err != nil {
		return nil, &model.PersistenceError{Op: "requery created alerts", Err: err}
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// UpdateSeverity writes escalated level/value/content back to alerts.
func (r *AlertRepo) UpdateSeverity(ctx context.Context, alerts []*model.Alert) error {
	const q = `UPDATE monitor_alert SET level = $2, value = $3, content = $4 WHERE id = $1`
	for _, a := range alerts {
		if _, err := r.DB.ExecContext(ctx, q, a.ID, a.Level, nullFloat(a.Value), a.Content); err != nil {
			return &model.PersistenceError{Op: "update alert severity", Err: err}
		}
	}
	return nil
}

func (r *AlertRepo) IncrementInfoCount(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `UPDATE monitor_alert SET info_event_count = info_event_count + 1 WHERE id = ANY($1)`
	if _, err := r.DB.ExecContext(ctx, q, pq.Array(ids)); err != nil {
		return &model.PersistenceError{Op: "increment info count", Err: err}
	}
	return nil
}

func (r *AlertRepo) ResetInfoCount(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `UPDATE monitor_alert SET info_event_count = 0 WHERE id = ANY($1)`
	if _, err := r.DB.ExecContext(ctx, q, pq.Array(ids)); err != nil {
		return &model.PersistenceError{Op: "reset info count", Err: err}
	}
	return nil
}

// RecoverByInfoCount closes the given threshold alerts once their info
// counter reached the recovery condition.
func (r *AlertRepo) RecoverByInfoCount(ctx context.Context, ids []int64, recoveryCondition int, endTime time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `UPDATE monitor_alert
SET status = $3, end_event_time = $4, operator = $5
WHERE id = ANY($1) AND info_event_count >= $2 AND status = $6`
	if _, err := r.DB.ExecContext(ctx, q, pq.Array(ids), recoveryCondition,
		model.AlertStatusRecovered, endTime, model.RecoveryOperator, model.AlertStatusNew); err != nil {
		return &model.PersistenceError{Op: "recover threshold alerts", Err: err}
	}
	return nil
}

// RecoverNoData closes active no_data alerts for instances that are
// reporting data again.
func (r *AlertRepo) RecoverNoData(ctx context.Context, policyID int64, instanceIDs []string, endTime time.Time) error {
	if len(instanceIDs) == 0 {
		return nil
	}
	const q = `UPDATE monitor_alert
SET status = $4, end_event_time = $5, operator = $6
WHERE policy_id = $1 AND instance_id = ANY($2) AND alert_type = $3 AND status = $7`
	if _, err := r.DB.ExecContext(ctx, q, policyID, pq.Array(instanceIDs), model.AlertTypeNoData,
		model.AlertStatusRecovered, endTime, model.RecoveryOperator, model.AlertStatusNew); err != nil {
		return &model.PersistenceError{Op: "recover no_data alerts", Err: err}
	}
	return nil
}

// List serves the read API.
func (r *AlertRepo) List(ctx context.Context, policyID int64, status string, limit int) ([]*model.Alert, error) {
	q := `SELECT ` + alertColumns + ` FROM monitor_alert WHERE 1=1`
	args := []any{}
	if policyID > 0 {
		args = append(args, policyID)
		q += fmt.Sprintf(` AND policy_id = $%d`, len(args))
	}
	if status != "" {
		args = append(args, status)
		q += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, len(args))

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func scanAlerts(rows *sql.Rows) ([]*model.Alert, error) {
	var out []*model.Alert
	for rows.Next() {
		var (
			a     model.Alert
			value sql.NullFloat64
			end   sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.PolicyID, &a.InstanceID, &a.InstanceName, &a.AlertType,
			&a.Level, &value, &a.Content, &a.Status, &a.StartEventTime, &end, &a.InfoEventCount, &a.Operator); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if value.Valid {
			v := value.Float64
			a.Value = &v
		}
		if end.Valid {
			t := end.Time
			a.EndEventTime = &t
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
