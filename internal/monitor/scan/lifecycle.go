package scan

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/opsless/policyscan/internal/monitor/model"
)

// Lifecycle owns alert state transitions: (absent) -> new -> recovered.
// Threshold and no-data alerts run as independent tracks per instance.
type Lifecycle struct {
	alerts AlertStore
}

func NewLifecycle(alerts AlertStore) *Lifecycle { return &Lifecycle{alerts: alerts} }

func eventAlertType(e *model.ScanEvent) string {
	if e.Kind == model.KindNoData {
		return model.AlertTypeNoData
	}
	return model.AlertTypeThreshold
}

func alertKey(instanceID, alertType string) string { return instanceID + "|" + alertType }

// Partition splits events into those feeding an existing active alert
// and those that need a new alert. Events mapping to an existing alert
// get their AlertID resolved immediately.
func (l *Lifecycle) Partition(events []*model.ScanEvent, active []*model.Alert) (newEvents, existingEvents []*model.ScanEvent, existingByKey map[string]*model.Alert) {
	existingByKey = make(map[string]*model.Alert, len(active))
	for _, a := range active {
		existingByKey[alertKey(a.InstanceID, a.AlertType)] = a
	}

	for _, e := range events {
		if a, ok := existingByKey[alertKey(e.InstanceID, eventAlertType(e))]; ok {
			e.AlertID = a.ID
			existingEvents = append(existingEvents, e)
		} else {
			newEvents = append(newEvents, e)
		}
	}
	return newEvents, existingEvents, existingByKey
}

// buildAlert is the single alert-construction path. No-data events
// produce alerts at the policy's no_data_level with a nil value.
func buildAlert(sc *ScanContext, e *model.ScanEvent) *model.Alert {
	alertType := eventAlertType(e)
	level := e.Level
	value := e.Value
	if alertType == model.AlertTypeNoData {
		level = noDataDisplayLevel(sc.Policy)
		value = nil
	}
	return &model.Alert{
		PolicyID:       sc.Policy.ID,
		InstanceID:     e.InstanceID,
		InstanceName:   sc.InstanceName(e.InstanceID),
		AlertType:      alertType,
		Level:          level,
		Value:          value,
		Content:        e.Content,
		Status:         model.AlertStatusNew,
		StartEventTime: sc.RunTime,
	}
}

// CreateAlerts opens alerts for events without an active one and
// resolves their AlertID from the created rows. A count mismatch between
// requested and created rows is logged, not fatal; events that cannot be
// correlated keep a zero AlertID and are dropped later.
func (l *Lifecycle) CreateAlerts(ctx context.Context, sc *ScanContext, newEvents []*model.ScanEvent) ([]*model.Alert, error) {
	if len(newEvents) == 0 {
		return nil, nil
	}

	toCreate := make([]*model.Alert, 0, len(newEvents))
	for _, e := range newEvents {
		toCreate = append(toCreate, buildAlert(sc, e))
	}

	created, err := l.alerts.CreateAlerts(ctx, toCreate)
	if err != nil {
		return nil, err
	}
	if len(created) != len(newEvents) {
		log.Error().
			Int64("policy", sc.Policy.ID).
			Int("expected", len(newEvents)).
			Int("got", len(created)).
			Msg("alert creation count mismatch")
	}
	alertsCreatedTotal.Add(float64(len(created)))

	byKey := make(map[string]*model.Alert, len(created))
	for _, a := range created {
		byKey[alertKey(a.InstanceID, a.AlertType)] = a
	}
	for _, e := range newEvents {
		a, ok := byKey[alertKey(e.InstanceID, eventAlertType(e))]
		if !ok {
			log.Error().
				Int64("policy", sc.Policy.ID).
				Str("instance", e.InstanceID).
				Msg("failed to resolve alert for event")
			continue
		}
		e.AlertID = a.ID
	}
	return created, nil
}

// Escalate raises an active alert's level/value/content when an event
// carries a strictly higher severity. No-data events never escalate.
// The event itself is recorded regardless of the outcome here.
func (l *Lifecycle) Escalate(ctx context.Context, existingEvents []*model.ScanEvent, existingByKey map[string]*model.Alert) error {
	var updates []*model.Alert
	for _, e := range existingEvents {
		if e.Kind == model.KindNoData {
			continue
		}
		a, ok := existingByKey[alertKey(e.InstanceID, model.AlertTypeThreshold)]
		if !ok {
			continue
		}
		if model.LevelWeight[e.Level] > model.LevelWeight[a.Level] {
			log.Debug().
				Int64("alert", a.ID).
				Str("from", a.Level).
				Str("to", e.Level).
				Msg("escalating alert level")
			a.Level = e.Level
			a.Value = e.Value
			a.Content = e.Content
			updates = append(updates, a)
		}
	}
	if len(updates) == 0 {
		return nil
	}
	if err := l.alerts.UpdateSeverity(ctx, updates); err != nil {
		return err
	}
	log.Info().Int("count", len(updates)).Msg("updated alerts with higher severity levels")
	return nil
}

// CountEvents maintains the consecutive-normal counter on active
// threshold alerts: +1 for an instance that produced only an info event
// this run, reset to 0 for an instance that produced an abnormal event.
func (l *Lifecycle) CountEvents(ctx context.Context, alertEvents, infoEvents []*model.ScanEvent, active []*model.Alert) error {
	byInstance := map[string]int64{}
	for _, a := range active {
		if a.AlertType == model.AlertTypeThreshold {
			byInstance[a.InstanceID] = a.ID
		}
	}

	var infoIDs, abnormalIDs []int64
	for _, e := range infoEvents {
		if id, ok := byInstance[e.InstanceID]; ok {
			infoIDs = append(infoIDs, id)
		}
	}
	for _, e := range alertEvents {
		if id, ok := byInstance[e.InstanceID]; ok {
			abnormalIDs = append(abnormalIDs, id)
		}
	}

	if err := l.alerts.IncrementInfoCount(ctx, infoIDs); err != nil {
		return err
	}
	return l.alerts.ResetInfoCount(ctx, abnormalIDs)
}

// RecoverThreshold closes active threshold alerts whose info counter
// reached the recovery condition. A recovery condition of zero disables
// auto-recovery permanently.
func (l *Lifecycle) RecoverThreshold(ctx context.Context, sc *ScanContext) error {
	if sc.Policy.RecoveryCondition <= 0 {
		return nil
	}
	var ids []int64
	for _, a := range sc.ActiveAlerts {
		if a.AlertType == model.AlertTypeThreshold {
			ids = append(ids, a.ID)
		}
	}
	return l.alerts.RecoverByInfoCount(ctx, ids, sc.Policy.RecoveryCondition, sc.RunTime)
}

// RecoverNoData closes active no_data alerts for every scoped instance
// present in the recovery-window aggregation. Safe to re-run: recovery
// only touches alerts still in status new.
func (l *Lifecycle) RecoverNoData(ctx context.Context, sc *ScanContext, result map[string]model.AggregateValue) error {
	ids := make([]string, 0, len(result))
	for id := range result {
		ids = append(ids, id)
	}
	return l.alerts.RecoverNoData(ctx, sc.Policy.ID, ids, sc.RunTime)
}
