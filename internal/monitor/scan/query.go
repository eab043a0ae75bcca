package scan

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/opsless/policyscan/internal/monitor/metrics"
	"github.com/opsless/policyscan/internal/monitor/model"
	"github.com/opsless/policyscan/internal/monitor/unit"
)

// querySvc runs the policy's queries against the metric backend and
// normalizes the results.
type querySvc struct {
	client metrics.Client
}

// aggregate queries the policy's aggregation over the given period,
// ending at the run time.
func (q *querySvc) aggregate(ctx context.Context, sc *ScanContext, period *model.Period) ([]model.Series, error) {
	seconds, err := period.Seconds()
	if err != nil {
		return nil, err
	}
	step, err := period.Step(1)
	if err != nil {
		return nil, err
	}
	end := sc.RunTime.Unix()
	return q.client.QueryAggregate(ctx, sc.BaseQuery, end-seconds, end, step, sc.Keys, sc.Policy.Algorithm)
}

// aggregateAt is aggregate with an explicit end timestamp, used for
// pre-alert baselines.
func (q *querySvc) aggregateAt(ctx context.Context, sc *ScanContext, period *model.Period, end int64) ([]model.Series, error) {
	seconds, err := period.Seconds()
	if err != nil {
		return nil, err
	}
	step, err := period.Step(1)
	if err != nil {
		return nil, err
	}
	return q.client.QueryAggregate(ctx, sc.BaseQuery, end-seconds, end, step, sc.Keys, sc.Policy.Algorithm)
}

// raw queries the unaggregated series over the period.
func (q *querySvc) raw(ctx context.Context, sc *ScanContext, period *model.Period) ([]model.Series, error) {
	seconds, err := period.Seconds()
	if err != nil {
		return nil, err
	}
	step, err := period.Step(1)
	if err != nil {
		return nil, err
	}
	end := sc.RunTime.Unix()
	return q.client.QueryRange(ctx, sc.BaseQuery, end-seconds, end, step)
}

// convertSeries normalizes raw values into the policy's calculation
// unit. A unit mismatch never blocks evaluation: non-convertible units
// are logged and the raw values are used as-is.
func convertSeries(series []model.Series, p *model.Policy) []model.Series {
	if !p.UnitConversionNeeded() {
		return series
	}
	if !unit.IsConvertible(p.MetricUnit, p.CalculationUnit) {
		log.Warn().
			Int64("policy", p.ID).
			Str("metric_unit", p.MetricUnit).
			Str("calculation_unit", p.CalculationUnit).
			Msg("units are not in the same system, skipping conversion")
		return series
	}

	out := make([]model.Series, len(series))
	for i, s := range series {
		values := make([]float64, len(s.Values))
		for j, pt := range s.Values {
			values[j] = pt.Value
		}
		converted, err := unit.ConvertValues(values, p.MetricUnit, p.CalculationUnit)
		if err != nil {
			log.Error().Err(err).Int64("policy", p.ID).Msg("unit conversion failed, using raw values")
			out[i] = s
			continue
		}
		points := make([]model.Point, len(s.Values))
		for j, pt := range s.Values {
			points[j] = model.Point{Timestamp: pt.Timestamp, Value: converted[j]}
		}
		out[i] = model.Series{Metric: s.Metric, Values: points}
	}
	return out
}

// aggregationResult keys each series by instance id and keeps the latest
// value plus the raw series as evidence. Series outside the scope are
// dropped; the backend may return overlapping label sets.
func aggregationResult(series []model.Series, sc *ScanContext) map[string]model.AggregateValue {
	result := map[string]model.AggregateValue{}
	for i := range series {
		s := series[i]
		id := s.InstanceID(sc.Keys)
		if sc.Scope != nil {
			if _, ok := sc.Scope[id]; !ok {
				continue
			}
		}
		last, ok := s.LastValue()
		if !ok {
			continue
		}
		result[id] = model.AggregateValue{Value: last.Value, RawData: &s}
	}
	return result
}
