package scan

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsless/policyscan/internal/monitor/model"
)

// preAlertLookback bounds how far back a baseline snapshot may reach.
const preAlertLookback = 7 * 24 * time.Hour

// SnapshotManager maintains the append-only evidence timeline of each
// active alert. Entries are merged per alert across runs; existing
// entries are never rewritten or reordered.
type SnapshotManager struct {
	snapshots SnapshotStore
	query     *querySvc
}

func NewSnapshotManager(snapshots SnapshotStore, query *querySvc) *SnapshotManager {
	return &SnapshotManager{snapshots: snapshots, query: query}
}

// Update records this run's evidence onto every active alert, the ones
// created this run included. Alerts with nothing to record are skipped;
// no_data alerts always get an entry, recording the still-no-data state.
func (m *SnapshotManager) Update(ctx context.Context, sc *ScanContext, events []*model.ScanEvent, newAlerts []*model.Alert) error {
	allActive := make([]*model.Alert, 0, len(sc.ActiveAlerts)+len(newAlerts))
	allActive = append(allActive, sc.ActiveAlerts...)
	allActive = append(allActive, newAlerts...)
	if len(allActive) == 0 {
		return nil
	}

	rawByInstance := map[string]*model.Series{}
	eventsByKey := map[string][]*model.ScanEvent{}
	for _, e := range events {
		if e.RawData != nil {
			if _, ok := rawByInstance[e.InstanceID]; !ok || e.Abnormal() {
				rawByInstance[e.InstanceID] = e.RawData
			}
		}
		if e.Abnormal() && e.EventID != "" {
			k := alertKey(e.InstanceID, eventAlertType(e))
			eventsByKey[k] = append(eventsByKey[k], e)
		}
	}

	newSet := map[int64]struct{}{}
	for _, a := range newAlerts {
		newSet[a.ID] = struct{}{}
	}

	var fallback map[string]*model.Series // lazily queried once per run
	snapTime := sc.RunTime.UTC().Format(time.RFC3339)

	for _, a := range allActive {
		related := eventsByKey[alertKey(a.InstanceID, a.AlertType)]
		raw := rawByInstance[a.InstanceID]
		if raw == nil {
			if fallback == nil {
				fallback = m.fallbackRawData(ctx, sc)
			}
			raw = fallback[a.InstanceID]
		}

		_, isNew := newSet[a.ID]
		isNoData := a.AlertType == model.AlertTypeNoData
		if len(related) == 0 && raw == nil && !isNew && !isNoData {
			continue
		}

		if err := m.updateAlert(ctx, sc, a, related, raw, snapTime, isNew, isNoData); err != nil {
			return err
		}
	}
	return nil
}

func (m *SnapshotManager) updateAlert(ctx context.Context, sc *ScanContext, a *model.Alert,
	related []*model.ScanEvent, raw *model.Series, snapTime string, isNew, isNoData bool) error {

	snap, created, err := m.snapshots.GetOrCreate(ctx, a.ID, sc.Policy.ID, a.InstanceID)
	if err != nil {
		return err
	}

	appended := false

	if isNew && created {
		if entry := m.preAlertEntry(ctx, sc, a.InstanceID); entry != nil {
			snap.Entries = append(snap.Entries, *entry)
			appended = true
			log.Info().Int64("alert", a.ID).Str("instance", a.InstanceID).Msg("added pre-alert snapshot")
		}
	}

	switch {
	case len(related) > 0 && raw != nil:
		for _, e := range related {
			if snap.HasEvent(e.EventID) {
				continue
			}
			snap.Entries = append(snap.Entries, model.SnapshotEntry{
				Type:         model.SnapshotTypeEvent,
				EventID:      e.EventID,
				EventTime:    snapTime,
				SnapshotTime: snapTime,
				RawData:      raw,
			})
			appended = true
		}
	case raw != nil:
		if !snap.HasEntryAt(model.SnapshotTypeInfo, snapTime) {
			snap.Entries = append(snap.Entries, model.SnapshotEntry{
				Type:         model.SnapshotTypeInfo,
				SnapshotTime: snapTime,
				RawData:      raw,
			})
			appended = true
		}
	case isNoData:
		if !snap.HasEntryAt(model.SnapshotTypeNoData, snapTime) {
			snap.Entries = append(snap.Entries, model.SnapshotEntry{
				Type:         model.SnapshotTypeNoData,
				EventTime:    snapTime,
				SnapshotTime: snapTime,
			})
			appended = true
		}
	}

	if !appended {
		return nil
	}
	if err := m.snapshots.Save(ctx, snap); err != nil {
		return err
	}
	log.Debug().Int64("alert", a.ID).Int("entries", len(snap.Entries)).Msg("saved alert snapshot")
	return nil
}

// preAlertEntry queries the baseline aggregation one period before the
// run. Any failure here skips the entry; the alert itself is unaffected.
func (m *SnapshotManager) preAlertEntry(ctx context.Context, sc *ScanContext, instanceID string) *model.SnapshotEntry {
	seconds, err := sc.Policy.Period.Seconds()
	if err != nil {
		return nil
	}
	preTime := sc.RunTime.Add(-time.Duration(seconds) * time.Second)
	if preTime.Before(time.Now().Add(-preAlertLookback)) {
		log.Warn().
			Int64("policy", sc.Policy.ID).
			Time("pre_alert_time", preTime).
			Msg("pre-alert time too early, skipping baseline snapshot")
		return nil
	}

	series, err := m.query.aggregateAt(ctx, sc, sc.Policy.Period, preTime.Unix())
	if err != nil {
		log.Error().Err(err).Int64("policy", sc.Policy.ID).Msg("failed to query pre-alert metrics")
		return nil
	}
	series = convertSeries(series, sc.Policy)

	for i := range series {
		s := series[i]
		if s.InstanceID(sc.Keys) != instanceID {
			continue
		}
		return &model.SnapshotEntry{
			Type:         model.SnapshotTypePreAlert,
			SnapshotTime: preTime.UTC().Format(time.RFC3339),
			RawData:      &s,
		}
	}
	log.Warn().
		Int64("policy", sc.Policy.ID).
		Str("instance", instanceID).
		Msg("no pre-alert data found")
	return nil
}

// fallbackRawData serves alerts from earlier runs that produced no event
// this run, so their timeline still advances.
func (m *SnapshotManager) fallbackRawData(ctx context.Context, sc *ScanContext) map[string]*model.Series {
	out := map[string]*model.Series{}
	series, err := m.query.raw(ctx, sc, sc.Policy.Period)
	if err != nil {
		log.Error().Err(err).Int64("policy", sc.Policy.ID).Msg("fallback raw data query failed")
		return out
	}
	for i := range series {
		s := series[i]
		out[s.InstanceID(sc.Keys)] = &s
	}
	return out
}
