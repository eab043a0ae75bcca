package scan

import (
	"context"
	"time"

	"github.com/opsless/policyscan/internal/monitor/model"
)

// Persistence ports consumed by the engine. Implemented by the database
// repos; faked in tests.

type PolicyStore interface {
	ListEnabled(ctx context.Context) ([]*model.Policy, error)
	GetByID(ctx context.Context, id int64) (*model.Policy, error)
	UpdateLastRunTime(ctx context.Context, id int64, t time.Time) error
	GetMetric(ctx context.Context, id string) (*model.Metric, error)
}

type InstanceStore interface {
	InstancesByIDs(ctx context.Context, monitorObjectID int64, ids []string) (map[string]string, error)
	InstanceIDsByOrganizations(ctx context.Context, monitorObjectID int64, orgs []string) ([]string, error)
}

type AlertStore interface {
	ActiveAlerts(ctx context.Context, policyID int64, instanceIDs []string) ([]*model.Alert, error)
	CreateAlerts(ctx context.Context, alerts []*model.Alert) ([]*model.Alert, error)
	UpdateSeverity(ctx context.Context, alerts []*model.Alert) error
	IncrementInfoCount(ctx context.Context, ids []int64) error
	ResetInfoCount(ctx context.Context, ids []int64) error
	RecoverByInfoCount(ctx context.Context, ids []int64, recoveryCondition int, endTime time.Time) error
	RecoverNoData(ctx context.Context, policyID int64, instanceIDs []string, endTime time.Time) error
}

type EventStore interface {
	CreateEvents(ctx context.Context, events []*model.Event) error
	CreateRawData(ctx context.Context, raw *model.EventRawData) error
	UpdateNoticeResults(ctx context.Context, events []*model.Event) error
}

type SnapshotStore interface {
	GetOrCreate(ctx context.Context, alertID, policyID int64, instanceID string) (*model.AlertMetricSnapshot, bool, error)
	Save(ctx context.Context, snap *model.AlertMetricSnapshot) error
}
