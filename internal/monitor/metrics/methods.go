package metrics

import (
	"fmt"
	"strings"

	"github.com/opsless/policyscan/internal/monitor/model"
)

// aggregation maps a policy algorithm name onto the backend's query
// syntax: an outer grouping aggregator and an inner window function.
type aggregation struct {
	outer string
	over  string
}

var methods = map[string]aggregation{
	"sum":   {outer: "sum", over: "sum_over_time"},
	"avg":   {outer: "avg", over: "avg_over_time"},
	"max":   {outer: "max", over: "max_over_time"},
	"min":   {outer: "min", over: "min_over_time"},
	"count": {outer: "sum", over: "count_over_time"},
	"last":  {outer: "max", over: "last_over_time"},
}

// BuildAggregateExpr renders the full aggregate expression for an
// algorithm. Unknown algorithm names are a policy configuration error and
// must fail before any query is issued.
func BuildAggregateExpr(algorithm, query, step string, groupBy []string) (string, error) {
	m, ok := methods[algorithm]
	if !ok {
		return "", &model.ConfigError{Message: fmt.Sprintf("invalid algorithm method: %s", algorithm)}
	}
	expr := fmt.Sprintf("%s(%s(%s[%s]))", m.outer, m.over, query, step)
	if len(groupBy) > 0 {
		expr = fmt.Sprintf("%s by (%s) (%s(%s[%s]))", m.outer, strings.Join(groupBy, ","), m.over, query, step)
	}
	return expr, nil
}

// FormatFilter renders filter items as a label-selector fragment for
// substitution into a metric's query template.
func FormatFilter(items []model.FilterItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if it.Name == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(`%s%s"%s"`, it.Name, it.Method, it.Value))
	}
	return strings.Join(parts, ",")
}
