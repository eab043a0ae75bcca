package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/opsless/policyscan/internal/monitor/model"
)

// PolicyRepo reads policy definitions and seeds them from bootstrap
// files. At scan time the engine only consumes policies and advances
// last_run_time.
type PolicyRepo struct {
	DB *Database
}

func NewPolicyRepo(db *Database) *PolicyRepo { return &PolicyRepo{DB: db} }

const policyColumns = `id, name, monitor_object_id, monitor_object_name, enable,
	source, period, no_data_period, no_data_recovery_period, algorithm,
	query_condition, thresholds, recovery_condition, no_data_level, no_data_alert,
	alert_name, no_data_alert_name, notice, notice_type_id, notice_users,
	metric_unit, calculation_unit, collect_type, last_run_time, enable_alerts`

func (r *PolicyRepo) ListEnabled(ctx context.Context) ([]*model.Policy, error) {
	q := `SELECT ` + policyColumns + ` FROM monitor_policy WHERE enable = true ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var out []*model.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PolicyRepo) GetByID(ctx context.Context, id int64) (*model.Policy, error) {
	q := `SELECT ` + policyColumns + ` FROM monitor_policy WHERE id = $1`
	rows, err := r.DB.QueryContext(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("get policy: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		return scanPolicy(rows)
	}
	return nil, nil
}

func (r *PolicyRepo) UpdateLastRunTime(ctx context.Context, id int64, t time.Time) error {
	const q = `UPDATE monitor_policy SET last_run_time = $2 WHERE id = $1`
	if _, err := r.DB.ExecContext(ctx, q, id, t); err != nil {
		return fmt.Errorf("update last_run_time: %w", err)
	}
	return nil
}

// UpsertByName writes a bootstrap policy, keyed by name so repeated
// startups converge. last_run_time is left alone on conflict.
func (r *PolicyRepo) UpsertByName(ctx context.Context, p *model.Policy) error {
	source, err := encodeNullable(p.Source)
	if err != nil {
		return &model.PersistenceError{Op: "encode policy source", Err: err}
	}
	period, err := json.Marshal(p.Period)
	if err != nil {
		return &model.PersistenceError{Op: "encode policy period", Err: err}
	}
	noDataPeriod, err := encodeNullable(p.NoDataPeriod)
	if err != nil {
		return &model.PersistenceError{Op: "encode no_data_period", Err: err}
	}
	noDataRecovery, err := encodeNullable(p.NoDataRecoveryPeriod)
	if err != nil {
		return &model.PersistenceError{Op: "encode no_data_recovery_period", Err: err}
	}
	queryCond, err := json.Marshal(p.QueryCondition)
	if err != nil {
		return &model.PersistenceError{Op: "encode query_condition", Err: err}
	}
	thresholds, err := json.Marshal(p.Thresholds)
	if err != nil {
		return &model.PersistenceError{Op: "encode thresholds", Err: err}
	}

	const q = `INSERT INTO monitor_policy
(name, monitor_object_id, monitor_object_name, enable, source, period,
 no_data_period, no_data_recovery_period, algorithm, query_condition, thresholds,
 recovery_condition, no_data_level, no_data_alert, alert_name, no_data_alert_name,
 notice, notice_type_id, notice_users, metric_unit, calculation_unit, collect_type, enable_alerts)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
ON CONFLICT (name) DO UPDATE SET
	monitor_object_id = EXCLUDED.monitor_object_id,
	monitor_object_name = EXCLUDED.monitor_object_name,
	enable = EXCLUDED.enable,
	source = EXCLUDED.source,
	period = EXCLUDED.period,
	no_data_period = EXCLUDED.no_data_period,
	no_data_recovery_period = EXCLUDED.no_data_recovery_period,
	algorithm = EXCLUDED.algorithm,
	query_condition = EXCLUDED.query_condition,
	thresholds = EXCLUDED.thresholds,
	recovery_condition = EXCLUDED.recovery_condition,
	no_data_level = EXCLUDED.no_data_level,
	no_data_alert = EXCLUDED.no_data_alert,
	alert_name = EXCLUDED.alert_name,
	no_data_alert_name = EXCLUDED.no_data_alert_name,
	notice = EXCLUDED.notice,
	notice_type_id = EXCLUDED.notice_type_id,
	notice_users = EXCLUDED.notice_users,
	metric_unit = EXCLUDED.metric_unit,
	calculation_unit = EXCLUDED.calculation_unit,
	collect_type = EXCLUDED.collect_type,
	enable_alerts = EXCLUDED.enable_alerts`
	if _, err := r.DB.ExecContext(ctx, q,
		p.Name, p.MonitorObjectID, p.MonitorObjectName, p.Enable, source, string(period),
		noDataPeriod, noDataRecovery, p.Algorithm, string(queryCond), string(thresholds),
		p.RecoveryCondition, p.NoDataLevel, p.NoDataAlert, p.AlertName, p.NoDataAlertName,
		p.Notice, p.NoticeTypeID, pq.Array(p.NoticeUsers), p.MetricUnit, p.CalculationUnit,
		p.CollectType, pq.Array(p.EnableAlerts),
	); err != nil {
		return &model.PersistenceError{Op: "upsert policy", Err: err}
	}
	return nil
}

// encodeNullable marshals a pointer, mapping nil to SQL NULL.
func encodeNullable(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case *model.Source:
		if t == nil {
			return nil, nil
		}
	case *model.Period:
		if t == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (r *PolicyRepo) GetMetric(ctx context.Context, id string) (*model.Metric, error) {
	const q = `SELECT id, name, display_name, query, instance_id_keys FROM monitor_metric WHERE id = $1`
	rows, err := r.DB.QueryContext(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("get metric: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		var m model.Metric
		if err := rows.Scan(&m.ID, &m.Name, &m.DisplayName, &m.Query, pq.Array(&m.InstanceIDKeys)); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		return &m, nil
	}
	return nil, nil
}

func scanPolicy(rows *sql.Rows) (*model.Policy, error) {
	var (
		p                          model.Policy
		source, noDataPeriod       sql.NullString
		noDataRecoveryPeriod       sql.NullString
		period, queryCond, thresh  string
		lastRun                    sql.NullTime
		noticeUsers, enabledAlerts []string
	)
	if err := rows.Scan(
		&p.ID, &p.Name, &p.MonitorObjectID, &p.MonitorObjectName, &p.Enable,
		&source, &period, &noDataPeriod, &noDataRecoveryPeriod, &p.Algorithm,
		&queryCond, &thresh, &p.RecoveryCondition, &p.NoDataLevel, &p.NoDataAlert,
		&p.AlertName, &p.NoDataAlertName, &p.Notice, &p.NoticeTypeID, pq.Array(&noticeUsers),
		&p.MetricUnit, &p.CalculationUnit, &p.CollectType, &lastRun, pq.Array(&enabledAlerts),
	); err != nil {
		return nil, fmt.Errorf("scan policy: %w", err)
	}

	if source.Valid && source.String != "" {
		p.Source = &model.Source{}
		if err := json.Unmarshal([]byte(source.String), p.Source); err != nil {
			return nil, fmt.Errorf("decode policy source: %w", err)
		}
	}
	p.Period = &model.Period{}
	if err := json.Unmarshal([]byte(period), p.Period); err != nil {
		return nil, fmt.Errorf("decode policy period: %w", err)
	}
	if noDataPeriod.Valid && noDataPeriod.String != "" {
		p.NoDataPeriod = &model.Period{}
		if err := json.Unmarshal([]byte(noDataPeriod.String), p.NoDataPeriod); err != nil {
			return nil, fmt.Errorf("decode no_data_period: %w", err)
		}
	}
	if noDataRecoveryPeriod.Valid && noDataRecoveryPeriod.String != "" {
		p.NoDataRecoveryPeriod = &model.Period{}
		if err := json.Unmarshal([]byte(noDataRecoveryPeriod.String), p.NoDataRecoveryPeriod); err != nil {
			return nil, fmt.Errorf("decode no_data_recovery_period: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(queryCond), &p.QueryCondition); err != nil {
		return nil, fmt.Errorf("decode query_condition: %w", err)
	}
	if err := json.Unmarshal([]byte(thresh), &p.Thresholds); err != nil {
		return nil, fmt.Errorf("decode thresholds: %w", err)
	}
	if lastRun.Valid {
		t := lastRun.Time
		p.LastRunTime = &t
	}
	p.NoticeUsers = noticeUsers
	p.EnableAlerts = enabledAlerts
	return &p, nil
}
