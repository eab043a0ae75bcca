package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsless/policyscan/internal/monitor/model"
)

const bootstrapYAML = `policies:
  - name: cpu usage high
    monitor_object_id: 7
    monitor_object_name: host
    enable: true
    source:
      type: instance
      values: ["host-1", "host-2"]
    period:
      type: min
      value: 5
    no_data_period:
      type: min
      value: 10
    algorithm: last
    query_condition:
      type: pmq
      query: cpu_usage
      instance_id_keys: ["instance_id"]
    thresholds:
      - method: ">="
        value: 95
        level: critical
      - method: ">="
        value: 80
        level: warning
    recovery_condition: 2
    no_data_level: error
    alert_name: "${instance_name} cpu at ${value}"
    notice: true
    notice_type_id: chan-1
    notice_users: ["alice"]
    metric_unit: "%"
    calculation_unit: "%"
    enable_alerts: ["threshold", "no_data"]
  - name: disk free low
    enable: false
    period:
      type: hour
      value: 1
    algorithm: min
    query_condition:
      type: metric
      metric_id: disk_free
      filter:
        - name: env
          method: "="
          value: prod
    thresholds:
      - method: "<"
        value: 10
        level: warning
`

func writeTempPolicyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPolicies(t *testing.T) {
	store := newMemPolicyStore()
	path := writeTempPolicyFile(t, bootstrapYAML)

	count, err := LoadPolicies(context.Background(), path, store)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.Len(t, store.upserts, 2)

	p := store.upserts[0]
	assert.Equal(t, "cpu usage high", p.Name)
	assert.True(t, p.Enable)
	require.NotNil(t, p.Source)
	assert.Equal(t, model.SourceTypeInstance, p.Source.Type)
	assert.Equal(t, []string{"host-1", "host-2"}, p.Source.Values)
	assert.Equal(t, &model.Period{Type: "min", Value: 5}, p.Period)
	assert.Equal(t, &model.Period{Type: "min", Value: 10}, p.NoDataPeriod)
	assert.Nil(t, p.NoDataRecoveryPeriod)
	require.Len(t, p.Thresholds, 2)
	assert.Equal(t, model.Threshold{Method: ">=", Value: 95, Level: model.LevelCritical}, p.Thresholds[0])
	assert.Equal(t, 2, p.RecoveryCondition)
	assert.True(t, p.Notice)
	assert.Equal(t, []string{"alice"}, p.NoticeUsers)
	assert.Equal(t, []string{"threshold", "no_data"}, p.EnableAlerts)

	q := store.upserts[1]
	assert.Equal(t, "disk free low", q.Name)
	assert.False(t, q.Enable)
	assert.Equal(t, "metric", q.QueryCondition.Type)
	assert.Equal(t, "disk_free", q.QueryCondition.MetricID)
	require.Len(t, q.QueryCondition.Filter, 1)
	assert.Equal(t, model.FilterItem{Name: "env", Method: "=", Value: "prod"}, q.QueryCondition.Filter[0])
	// threshold track is the default when enable_alerts is omitted
	assert.Equal(t, []string{model.EnableThreshold}, q.EnableAlerts)
}

func TestLoadPoliciesMissingFile(t *testing.T) {
	store := newMemPolicyStore()
	count, err := LoadPolicies(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"), store)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, store.upserts)
}

func TestLoadPoliciesEmptyPath(t *testing.T) {
	count, err := LoadPolicies(context.Background(), "", newMemPolicyStore())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLoadPoliciesInvalidYAML(t *testing.T) {
	path := writeTempPolicyFile(t, "policies: [\n")
	_, err := LoadPolicies(context.Background(), path, newMemPolicyStore())
	assert.Error(t, err)
}

func TestLoadPoliciesRejectsNamelessPolicy(t *testing.T) {
	path := writeTempPolicyFile(t, "policies:\n  - enable: true\n    period: {type: min, value: 5}\n")
	_, err := LoadPolicies(context.Background(), path, newMemPolicyStore())
	require.Error(t, err)
	var cfgErr *model.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadPoliciesRejectsMissingPeriod(t *testing.T) {
	path := writeTempPolicyFile(t, "policies:\n  - name: broken\n")
	_, err := LoadPolicies(context.Background(), path, newMemPolicyStore())
	assert.Error(t, err)
}
