package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/opsless/policyscan/internal/monitor/model"
	"github.com/opsless/policyscan/internal/monitor/notify"
)

// In-memory stores backing scanner tests.

type memPolicyStore struct {
	policies map[int64]*model.Policy
	metrics  map[string]*model.Metric
	lastRun  map[int64]time.Time
	upserts  []*model.Policy
}

func newMemPolicyStore(policies ...*model.Policy) *memPolicyStore {
	s := &memPolicyStore{
		policies: map[int64]*model.Policy{},
		metrics:  map[string]*model.Metric{},
		lastRun:  map[int64]time.Time{},
	}
	for _, p := range policies {
		s.policies[p.ID] = p
	}
	return s
}

func (s *memPolicyStore) ListEnabled(ctx context.Context) ([]*model.Policy, error) {
	var out []*model.Policy
	for _, p := range s.policies {
		if p.Enable {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memPolicyStore) GetByID(ctx context.Context, id int64) (*model.Policy, error) {
	return s.policies[id], nil
}

func (s *memPolicyStore) UpdateLastRunTime(ctx context.Context, id int64, t time.Time) error {
	s.lastRun[id] = t
	return nil
}

func (s *memPolicyStore) GetMetric(ctx context.Context, id string) (*model.Metric, error) {
	return s.metrics[id], nil
}

func (s *memPolicyStore) UpsertByName(ctx context.Context, p *model.Policy) error {
	s.upserts = append(s.upserts, p)
	return nil
}

type memInstanceStore struct {
	instances map[string]string   // id -> name
	orgs      map[string][]string // org -> instance ids
}

func (s *memInstanceStore) InstancesByIDs(ctx context.Context, monitorObjectID int64, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		if name, ok := s.instances[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func (s *memInstanceStore) InstanceIDsByOrganizations(ctx context.Context, monitorObjectID int64, orgs []string) ([]string, error) {
	var out []string
	for _, org := range orgs {
		out = append(out, s.orgs[org]...)
	}
	return out, nil
}

type memAlertStore struct {
	nextID      int64
	alerts      map[int64]*model.Alert
	severityErr error
}

func newMemAlertStore() *memAlertStore {
	return &memAlertStore{alerts: map[int64]*model.Alert{}}
}

func (s *memAlertStore) add(a *model.Alert) *model.Alert {
	s.nextID++
	a.ID = s.nextID
	s.alerts[a.ID] = a
	return a
}

func (s *memAlertStore) ActiveAlerts(ctx context.Context, policyID int64, instanceIDs []string) ([]*model.Alert, error) {
	var scope map[string]bool
	if instanceIDs != nil {
		scope = map[string]bool{}
		for _, id := range instanceIDs {
			scope[id] = true
		}
	}
	var out []*model.Alert
	for _, a := range s.alerts {
		if a.PolicyID != policyID || a.Status != model.AlertStatusNew {
			continue
		}
		if scope != nil && !scope[a.InstanceID] {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *memAlertStore) CreateAlerts(ctx context.Context, alerts []*model.Alert) ([]*model.Alert, error) {
	out := make([]*model.Alert, 0, len(alerts))
	for _, a := range alerts {
		cp := *a
		out = append(out, s.add(&cp))
	}
	return out, nil
}

func (s *memAlertStore) UpdateSeverity(ctx context.Context, alerts []*model.Alert) error {
	if s.severityErr != nil {
		return s.severityErr
	}
	for _, a := range alerts {
		stored, ok := s.alerts[a.ID]
		if !ok {
			return fmt.Errorf("alert not found: %d", a.ID)
		}
		stored.Level = a.Level
		stored.Value = a.Value
		stored.Content = a.Content
	}
	return nil
}

func (s *memAlertStore) IncrementInfoCount(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if a, ok := s.alerts[id]; ok {
			a.InfoEventCount++
		}
	}
	return nil
}

func (s *memAlertStore) ResetInfoCount(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if a, ok := s.alerts[id]; ok {
			a.InfoEventCount = 0
		}
	}
	return nil
}

func (s *memAlertStore) RecoverByInfoCount(ctx context.Context, ids []int64, recoveryCondition int, endTime time.Time) error {
	for _, id := range ids {
		a, ok := s.alerts[id]
		if !ok || a.Status != model.AlertStatusNew {
			continue
		}
		if a.InfoEventCount >= recoveryCondition {
			a.Status = model.AlertStatusRecovered
			a.EndEventTime = &endTime
			a.Operator = model.RecoveryOperator
		}
	}
	return nil
}

func (s *memAlertStore) RecoverNoData(ctx context.Context, policyID int64, instanceIDs []string, endTime time.Time) error {
	in := map[string]bool{}
	for _, id := range instanceIDs {
		in[id] = true
	}
	for _, a := range s.alerts {
		if a.PolicyID != policyID || a.AlertType != model.AlertTypeNoData || a.Status != model.AlertStatusNew {
			continue
		}
		if in[a.InstanceID] {
			a.Status = model.AlertStatusRecovered
			a.EndEventTime = &endTime
			a.Operator = model.RecoveryOperator
		}
	}
	return nil
}

type memEventStore struct {
	events        []*model.Event
	raws          []*model.EventRawData
	noticeUpdates []*model.Event
}

func (s *memEventStore) CreateEvents(ctx context.Context, events []*model.Event) error {
	s.events = append(s.events, events...)
	return nil
}

func (s *memEventStore) CreateRawData(ctx context.Context, raw *model.EventRawData) error {
	s.raws = append(s.raws, raw)
	return nil
}

func (s *memEventStore) UpdateNoticeResults(ctx context.Context, events []*model.Event) error {
	s.noticeUpdates = append(s.noticeUpdates, events...)
	return nil
}

type memSnapshotStore struct {
	snaps map[int64]*model.AlertMetricSnapshot
	saves int
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{snaps: map[int64]*model.AlertMetricSnapshot{}}
}

func (s *memSnapshotStore) GetOrCreate(ctx context.Context, alertID, policyID int64, instanceID string) (*model.AlertMetricSnapshot, bool, error) {
	if snap, ok := s.snaps[alertID]; ok {
		return snap, false, nil
	}
	snap := &model.AlertMetricSnapshot{
		AlertID:    alertID,
		PolicyID:   policyID,
		InstanceID: instanceID,
		Entries:    []model.SnapshotEntry{},
	}
	s.snaps[alertID] = snap
	return snap, true, nil
}

func (s *memSnapshotStore) Save(ctx context.Context, snap *model.AlertMetricSnapshot) error {
	s.snaps[snap.AlertID] = snap
	s.saves++
	return nil
}

// fakeBackend implements metrics.Client.
type fakeBackend struct {
	agg      []model.Series
	aggFn    func(query string, start, end int64, step string) []model.Series
	raw      []model.Series
	err      error
	aggCalls int
	rawCalls int
}

func (f *fakeBackend) QueryRange(ctx context.Context, query string, start, end int64, step string) ([]model.Series, error) {
	f.rawCalls++
	return f.raw, f.err
}

func (f *fakeBackend) QueryAggregate(ctx context.Context, query string, start, end int64, step string, groupBy []string, algorithm string) ([]model.Series, error) {
	f.aggCalls++
	if f.err != nil {
		return nil, f.err
	}
	if f.aggFn != nil {
		return f.aggFn(query, start, end, step), nil
	}
	return f.agg, nil
}

type sentNotice struct {
	channelID string
	title     string
	content   string
	users     []string
}

type fakeSender struct {
	sent   []sentNotice
	result bool
	err    error
}

func (f *fakeSender) Send(ctx context.Context, channelID, title, content string, users []string) (*notify.Result, error) {
	f.sent = append(f.sent, sentNotice{channelID: channelID, title: title, content: content, users: users})
	if f.err != nil {
		return nil, f.err
	}
	return &notify.Result{Result: f.result}, nil
}

// Test fixtures.

func makeSeries(instanceID string, values ...float64) model.Series {
	points := make([]model.Point, len(values))
	for i, v := range values {
		points[i] = model.Point{Timestamp: int64(1700000000 + i*60), Value: v}
	}
	return model.Series{Metric: map[string]string{"instance_id": instanceID}, Values: points}
}

func testPolicy() *model.Policy {
	return &model.Policy{
		ID:                1,
		Name:              "cpu usage",
		MonitorObjectID:   7,
		MonitorObjectName: "host",
		Enable:            true,
		Period:            &model.Period{Type: "min", Value: 5},
		Algorithm:         "last",
		QueryCondition: model.QueryCondition{
			Type:           "pmq",
			Query:          "cpu_usage",
			MetricID:       "cpu_usage",
			InstanceIDKeys: []string{"instance_id"},
		},
		Thresholds: []model.Threshold{
			{Method: ">=", Value: 95, Level: model.LevelCritical},
			{Method: ">=", Value: 80, Level: model.LevelWarning},
		},
		RecoveryCondition: 2,
		EnableAlerts:      []string{model.EnableThreshold},
	}
}

func testScanContext(p *model.Policy, scope map[string]string) *ScanContext {
	return &ScanContext{
		Policy:     p,
		RunTime:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Scope:      scope,
		Keys:       []string{"instance_id"},
		MetricName: "cpu_usage",
		BaseQuery:  "cpu_usage",
	}
}
