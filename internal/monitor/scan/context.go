package scan

import (
	"fmt"
	"strings"
	"time"

	"github.com/opsless/policyscan/internal/monitor/metrics"
	"github.com/opsless/policyscan/internal/monitor/model"
)

// ScanContext is the immutable per-run view of a policy: scope, active
// alerts and query parameters are snapshotted once at the start of the
// run so a reused orchestrator can never see stale state.
type ScanContext struct {
	Policy       *model.Policy
	RunTime      time.Time
	Scope        map[string]string // nil = unconstrained
	ActiveAlerts []*model.Alert
	Keys         []string // instance-identity label keys
	MetricName   string
	BaseQuery    string
}

// Scoped reports whether the policy carries an instance source.
func (sc *ScanContext) Scoped() bool { return sc.Policy.Source != nil }

// ScopeIDs returns scope keys, nil when unconstrained.
func (sc *ScanContext) ScopeIDs() []string {
	if sc.Scope == nil {
		return nil
	}
	ids := make([]string, 0, len(sc.Scope))
	for id := range sc.Scope {
		ids = append(ids, id)
	}
	return ids
}

// InstanceName resolves an instance's display name, falling back to the id.
func (sc *ScanContext) InstanceName(instanceID string) string {
	if name, ok := sc.Scope[instanceID]; ok {
		return name
	}
	return instanceID
}

// resolveQuery determines the identity keys, metric display name and
// base query expression from the policy's query condition. A missing
// metric reference is a configuration error.
func resolveQuery(p *model.Policy, metric *model.Metric) (keys []string, metricName, query string, err error) {
	qc := p.QueryCondition
	if qc.Type == "pmq" {
		if p.CollectType == "trap" {
			keys = []string{"source"}
		} else if len(qc.InstanceIDKeys) > 0 {
			keys = qc.InstanceIDKeys
		} else {
			keys = []string{"instance_id"}
		}
		return keys, qc.MetricID, qc.Query, nil
	}

	if metric == nil {
		return nil, "", "", &model.ConfigError{Message: fmt.Sprintf("metric does not exist [%s]", qc.MetricID)}
	}
	filter := metrics.FormatFilter(qc.Filter)
	query = strings.ReplaceAll(metric.Query, "__$labels__", filter)
	return metric.InstanceIDKeys, metric.Label(), query, nil
}
