package database

import (
	"context"
	"fmt"

	"github.com/lib/pq"
)

// InstanceRepo reads monitored instances and their organization
// memberships. Instances are owned by the CMDB side, read-only here.
type InstanceRepo struct {
	DB *Database
}

func NewInstanceRepo(db *Database) *InstanceRepo { return &InstanceRepo{DB: db} }

// InstancesByIDs returns id -> name for live instances of the monitored
// object type whose ids are in the given set.
func (r *InstanceRepo) InstancesByIDs(ctx context.Context, monitorObjectID int64, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	const q = `SELECT id, name FROM monitor_instance
WHERE monitor_object_id = $1 AND id = ANY($2) AND is_deleted = false`
	rows, err := r.DB.QueryContext(ctx, q, monitorObjectID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("instances by ids: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		out[id] = name
	}
	return out, rows.Err()
}

// InstanceIDsByOrganizations returns ids of instances belonging to any of
// the given organizations.
func (r *InstanceRepo) InstanceIDsByOrganizations(ctx context.Context, monitorObjectID int64, orgs []string) ([]string, error) {
	if len(orgs) == 0 {
		return nil, nil
	}
	const q = `SELECT DISTINCT o.monitor_instance_id
FROM monitor_instance_organization o
JOIN monitor_instance i ON i.id = o.monitor_instance_id
WHERE i.monitor_object_id = $1 AND o.organization = ANY($2)`
	rows, err := r.DB.QueryContext(ctx, q, monitorObjectID, pq.Array(orgs))
	if err != nil {
		return nil, fmt.Errorf("instances by organizations: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan instance id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
