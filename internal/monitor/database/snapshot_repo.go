package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opsless/policyscan/internal/monitor/model"
)

type SnapshotRepo struct {
	DB *Database
}

func NewSnapshotRepo(db *Database) *SnapshotRepo { return &SnapshotRepo{DB: db} }

// GetOrCreate loads the snapshot row for an alert, creating an empty one
// on first use. The bool reports whether the row was created.
func (r *SnapshotRepo) GetOrCreate(ctx context.Context, alertID, policyID int64, instanceID string) (*model.AlertMetricSnapshot, bool, error) {
	snap, err := r.Get(ctx, alertID)
	if err != nil {
		return nil, false, err
	}
	if snap != nil {
		return snap, false, nil
	}

	const ins = `INSERT INTO monitor_alert_metric_snapshot (alert_id, policy_id, instance_id, entries)
VALUES ($1, $2, $3, '[]'::jsonb) ON CONFLICT (alert_id) DO NOTHING`
	if _, err := r.DB.ExecContext(ctx, ins, alertID, policyID, instanceID); err != nil {
		return nil, false, &model.PersistenceError{Op: "create snapshot", Err: err}
	}
	return &model.AlertMetricSnapshot{
		AlertID:    alertID,
		PolicyID:   policyID,
		InstanceID: instanceID,
		Entries:    []model.SnapshotEntry{},
	}, true, nil
}

func (r *SnapshotRepo) Get(ctx context.Context, alertID int64) (*model.AlertMetricSnapshot, error) {
	const q = `SELECT alert_id, policy_id, instance_id, entries
FROM monitor_alert_metric_snapshot WHERE alert_id = $1`
	rows, err := r.DB.QueryContext(ctx, q, alertID)
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}

	var (
		snap    model.AlertMetricSnapshot
		entries string
	)
	if err := rows.Scan(&snap.AlertID, &snap.PolicyID, &snap.InstanceID, &entries); err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(entries), &snap.Entries); err != nil {
		return nil, fmt.Errorf("decode snapshot entries: %w", err)
	}
	return &snap, nil
}

func (r *SnapshotRepo) Save(ctx context.Context, snap *model.AlertMetricSnapshot) error {
	entries, err := json.Marshal(snap.Entries)
	if err != nil {
		return &model.PersistenceError{Op: "encode snapshot entries", Err: err}
	}
	const q = `UPDATE monitor_alert_metric_snapshot
SET entries = $2::jsonb, updated_at = now() WHERE alert_id = $1`
	if _, err := r.DB.ExecContext(ctx, q, snap.AlertID, string(entries)); err != nil {
		return &model.PersistenceError{Op: "save snapshot", Err: err}
	}
	return nil
}
