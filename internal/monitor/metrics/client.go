package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	promModel "github.com/prometheus/common/model"
	"github.com/rs/zerolog/log"

	"github.com/opsless/policyscan/internal/monitor/model"
)

// Client executes range and aggregate queries against the time-series
// backend. Implemented by PromClient; faked in tests.
type Client interface {
	QueryRange(ctx context.Context, query string, start, end int64, step string) ([]model.Series, error)
	QueryAggregate(ctx context.Context, query string, start, end int64, step string, groupBy []string, algorithm string) ([]model.Series, error)
}

// PromClient queries a Prometheus-compatible HTTP API (VictoriaMetrics
// speaks the same endpoints).
type PromClient struct {
	api v1.API
}

func NewPromClient(address string) (*PromClient, error) {
	client, err := api.NewClient(api.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	return &PromClient{api: v1.NewAPI(client)}, nil
}

func (c *PromClient) QueryRange(ctx context.Context, query string, start, end int64, step string) ([]model.Series, error) {
	stepDur, err := ParseStep(step)
	if err != nil {
		return nil, err
	}
	r := v1.Range{
		Start: time.Unix(start, 0),
		End:   time.Unix(end, 0),
		Step:  stepDur,
	}
	result, warnings, err := c.api.QueryRange(ctx, query, r)
	if err != nil {
		return nil, &model.BackendQueryError{Query: query, Err: err}
	}
	if len(warnings) > 0 {
		log.Warn().Strs("warnings", warnings).Str("query", query).Msg("backend returned warnings")
	}

	matrix, ok := result.(promModel.Matrix)
	if !ok {
		return nil, &model.BackendQueryError{Query: query, Err: fmt.Errorf("unexpected result type: %T", result)}
	}
	return matrixToSeries(matrix), nil
}

func (c *PromClient) QueryAggregate(ctx context.Context, query string, start, end int64, step string, groupBy []string, algorithm string) ([]model.Series, error) {
	expr, err := BuildAggregateExpr(algorithm, query, step, groupBy)
	if err != nil {
		return nil, err
	}
	return c.QueryRange(ctx, expr, start, end, step)
}

func matrixToSeries(matrix promModel.Matrix) []model.Series {
	out := make([]model.Series, 0, len(matrix))
	for _, stream := range matrix {
		labels := make(map[string]string, len(stream.Metric))
		for k, v := range stream.Metric {
			labels[string(k)] = string(v)
		}
		values := make([]model.Point, 0, len(stream.Values))
		for _, pair := range stream.Values {
			values = append(values, model.Point{
				Timestamp: pair.Timestamp.Unix(),
				Value:     float64(pair.Value),
			})
		}
		out = append(out, model.Series{Metric: labels, Values: values})
	}
	return out
}

// ParseStep parses a backend step string. time.ParseDuration handles
// m/h suffixes; d is policy syntax and expanded here.
func ParseStep(step string) (time.Duration, error) {
	if strings.HasSuffix(step, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(step, "d"))
		if err != nil {
			return 0, &model.ConfigError{Message: fmt.Sprintf("invalid step: %s", step)}
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(step)
	if err != nil {
		return 0, &model.ConfigError{Message: fmt.Sprintf("invalid step: %s", step)}
	}
	return d, nil
}
