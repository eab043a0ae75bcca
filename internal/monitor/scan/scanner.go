package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsless/policyscan/internal/monitor/metrics"
	"github.com/opsless/policyscan/internal/monitor/model"
	"github.com/opsless/policyscan/internal/monitor/notify"
)

// Scanner orchestrates one policy run: resolve scope and query, detect
// threshold and no-data events, drive alert lifecycle, persist evidence,
// notify and snapshot. Steps are either critical (abort the run) or
// isolated (logged, run continues) so one broken policy or subsystem
// cannot poison the rest.
type Scanner struct {
	policies  PolicyStore
	scope     *ScopeResolver
	query     *querySvc
	lifecycle *Lifecycle
	recorder  *EventRecorder
	snapshot  *SnapshotManager
	dispatch  *Dispatcher
}

func NewScanner(policies PolicyStore, instances InstanceStore, alerts AlertStore,
	events EventStore, snapshots SnapshotStore, client metrics.Client, sender notify.Sender) *Scanner {
	q := &querySvc{client: client}
	return &Scanner{
		policies:  policies,
		scope:     NewScopeResolver(instances),
		query:     q,
		lifecycle: NewLifecycle(alerts),
		recorder:  NewEventRecorder(events),
		snapshot:  NewSnapshotManager(snapshots, q),
		dispatch:  NewDispatcher(sender, events),
	}
}

// runStep wraps one pipeline step with uniform error handling. Critical
// steps propagate their error; isolated steps log and swallow it.
func runStep(policyID int64, name string, critical bool, fn func() error) error {
	if err := fn(); err != nil {
		log.Error().Err(err).Int64("policy", policyID).Msgf("failed to %s", name)
		if critical {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
	log.Debug().Int64("policy", policyID).Msgf("%s completed", name)
	return nil
}

// RunByID loads the policy and runs it at the given time. Used by the
// manual-trigger API.
func (s *Scanner) RunByID(ctx context.Context, policyID int64, runTime time.Time) error {
	p, err := s.policies.GetByID(ctx, policyID)
	if err != nil {
		return err
	}
	if p == nil {
		return &model.ConfigError{Message: fmt.Sprintf("policy does not exist [%d]", policyID)}
	}
	return s.Run(ctx, p, runTime)
}

// Run executes one scan of a policy at runTime. A policy whose source
// resolves to zero instances is skipped entirely.
func (s *Scanner) Run(ctx context.Context, p *model.Policy, runTime time.Time) error {
	sc, err := s.prepare(ctx, p, runTime)
	if err != nil {
		scansTotal.WithLabelValues("error").Inc()
		return err
	}
	if sc == nil {
		scansTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	alertEvents, infoEvents := s.collectThreshold(ctx, sc)
	noDataEvents := s.collectNoData(ctx, sc)

	events := make([]*model.ScanEvent, 0, len(alertEvents)+len(noDataEvents))
	events = append(events, alertEvents...)
	events = append(events, noDataEvents...)

	var (
		created   []*model.Alert
		eventRows []*model.Event
	)
	if len(events) > 0 {
		err := runStep(p.ID, "create events and alerts", true, func() error {
			newEvents, existingEvents, existingByKey := s.lifecycle.Partition(events, sc.ActiveAlerts)
			var err error
			if created, err = s.lifecycle.CreateAlerts(ctx, sc, newEvents); err != nil {
				return err
			}
			if eventRows, err = s.recorder.Record(ctx, sc, events); err != nil {
				return err
			}
			return s.lifecycle.Escalate(ctx, existingEvents, existingByKey)
		})
		if err != nil {
			scansTotal.WithLabelValues("error").Inc()
			return err
		}
		log.Info().
			Int64("policy", p.ID).
			Int("events", len(eventRows)).
			Int("new_alerts", len(created)).
			Msg("created events and alerts")

		_ = runStep(p.ID, "send notifications", false, func() error {
			s.dispatch.Dispatch(ctx, sc, eventRows)
			return nil
		})
	}

	s.recordSnapshots(ctx, sc, events, infoEvents, created)

	_ = runStep(p.ID, "update last run time", false, func() error {
		return s.policies.UpdateLastRunTime(ctx, p.ID, runTime)
	})

	scansTotal.WithLabelValues("ok").Inc()
	return nil
}

// prepare snapshots everything a run needs up front. Returns (nil, nil)
// when the policy's configured scope matches no instances.
func (s *Scanner) prepare(ctx context.Context, p *model.Policy, runTime time.Time) (*ScanContext, error) {
	scope, err := s.scope.Resolve(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("resolve scope: %w", err)
	}
	if p.Source != nil && len(scope) == 0 {
		log.Warn().Int64("policy", p.ID).Msg("policy has source but no instances, skipping scan")
		return nil, nil
	}

	var metric *model.Metric
	if p.QueryCondition.Type == "metric" {
		if metric, err = s.policies.GetMetric(ctx, p.QueryCondition.MetricID); err != nil {
			return nil, fmt.Errorf("load metric: %w", err)
		}
	}
	keys, metricName, query, err := resolveQuery(p, metric)
	if err != nil {
		return nil, err
	}

	sc := &ScanContext{
		Policy:     p,
		RunTime:    runTime,
		Scope:      scope,
		Keys:       keys,
		MetricName: metricName,
		BaseQuery:  query,
	}
	if sc.ActiveAlerts, err = s.lifecycle.alerts.ActiveAlerts(ctx, p.ID, sc.ScopeIDs()); err != nil {
		return nil, fmt.Errorf("load active alerts: %w", err)
	}
	return sc, nil
}

// collectThreshold runs the threshold track: evaluate, maintain
// recovery counters, recover. The whole track is isolated.
func (s *Scanner) collectThreshold(ctx context.Context, sc *ScanContext) (alertEvents, infoEvents []*model.ScanEvent) {
	if !sc.Policy.ThresholdEnabled() {
		return nil, nil
	}
	_ = runStep(sc.Policy.ID, "process threshold alerts", false, func() error {
		series, err := s.query.aggregate(ctx, sc, sc.Policy.Period)
		if err != nil {
			return err
		}
		series = convertSeries(series, sc.Policy)
		if alertEvents, infoEvents, err = EvaluateThresholds(series, sc); err != nil {
			return err
		}
		if err := s.lifecycle.CountEvents(ctx, alertEvents, infoEvents, sc.ActiveAlerts); err != nil {
			return err
		}
		return s.lifecycle.RecoverThreshold(ctx, sc)
	})
	if len(alertEvents) > 0 || len(infoEvents) > 0 {
		log.Info().
			Int64("policy", sc.Policy.ID).
			Int("alerts", len(alertEvents)).
			Int("info", len(infoEvents)).
			Msg("threshold detection finished")
	}
	return alertEvents, infoEvents
}

// collectNoData runs the no-data track. Detection needs an instance
// scope and a no-data window; recovery needs only a recovery window, so
// alerts from an earlier configuration still close once their instances
// report again.
func (s *Scanner) collectNoData(ctx context.Context, sc *ScanContext) (noDataEvents []*model.ScanEvent) {
	p := sc.Policy
	if !p.NoDataEnabled() {
		return nil
	}
	if p.NoDataPeriod != nil && sc.Scoped() {
		_ = runStep(p.ID, "process no-data alerts", false, func() error {
			series, err := s.query.aggregate(ctx, sc, p.NoDataPeriod)
			if err != nil {
				return err
			}
			noDataEvents = DetectNoData(aggregationResult(series, sc), sc)
			return nil
		})
		if len(noDataEvents) > 0 {
			log.Info().Int64("policy", p.ID).Int("events", len(noDataEvents)).Msg("no-data detection finished")
		}
	}
	if p.NoDataRecoveryPeriod != nil {
		_ = runStep(p.ID, "recover no-data alerts", false, func() error {
			recSeries, err := s.query.aggregate(ctx, sc, p.NoDataRecoveryPeriod)
			if err != nil {
				return err
			}
			return s.lifecycle.RecoverNoData(ctx, sc, aggregationResult(recSeries, sc))
		})
	}
	return noDataEvents
}

// recordSnapshots advances evidence timelines when there are active
// alerts and anything to record this run.
func (s *Scanner) recordSnapshots(ctx context.Context, sc *ScanContext, events, infoEvents []*model.ScanEvent, created []*model.Alert) {
	hasActive := len(sc.ActiveAlerts) > 0 || len(created) > 0
	hasData := len(events) > 0 || len(infoEvents) > 0 || len(created) > 0
	if !hasActive || !hasData {
		return
	}
	all := make([]*model.ScanEvent, 0, len(events)+len(infoEvents))
	all = append(all, events...)
	all = append(all, infoEvents...)
	_ = runStep(sc.Policy.ID, "create metric snapshots", false, func() error {
		return s.snapshot.Update(ctx, sc, all, created)
	})
}
