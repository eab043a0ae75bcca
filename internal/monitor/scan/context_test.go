package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsless/policyscan/internal/monitor/model"
)

func TestResolveQueryPMQ(t *testing.T) {
	p := testPolicy()
	keys, name, query, err := resolveQuery(p, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"instance_id"}, keys)
	assert.Equal(t, "cpu_usage", name)
	assert.Equal(t, "cpu_usage", query)
}

func TestResolveQueryPMQDefaultKeys(t *testing.T) {
	p := testPolicy()
	p.QueryCondition.InstanceIDKeys = nil
	keys, _, _, err := resolveQuery(p, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"instance_id"}, keys)
}

func TestResolveQueryTrapCollect(t *testing.T) {
	p := testPolicy()
	p.CollectType = "trap"
	keys, _, _, err := resolveQuery(p, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"source"}, keys)
}

func TestResolveQueryMetricTemplate(t *testing.T) {
	p := testPolicy()
	p.QueryCondition = model.QueryCondition{
		Type:     "metric",
		MetricID: "disk_free",
		Filter: []model.FilterItem{
			{Name: "env", Method: "=", Value: "prod"},
		},
	}
	metric := &model.Metric{
		ID:             "disk_free",
		Name:           "disk_free",
		DisplayName:    "Disk Free",
		Query:          `node_filesystem_avail_bytes{__$labels__}`,
		InstanceIDKeys: []string{"host", "device"},
	}
	keys, name, query, err := resolveQuery(p, metric)
	require.NoError(t, err)
	assert.Equal(t, []string{"host", "device"}, keys)
	assert.Equal(t, "Disk Free", name)
	assert.Equal(t, `node_filesystem_avail_bytes{env="prod"}`, query)
}

func TestResolveQueryMissingMetric(t *testing.T) {
	p := testPolicy()
	p.QueryCondition = model.QueryCondition{Type: "metric", MetricID: "ghost"}
	_, _, _, err := resolveQuery(p, nil)
	require.Error(t, err)
	var cfgErr *model.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "ghost")
}

func TestScanContextScopeIDs(t *testing.T) {
	sc := testScanContext(testPolicy(), nil)
	assert.Nil(t, sc.ScopeIDs(), "unconstrained scope")

	sc = testScanContext(testPolicy(), map[string]string{"a": "x", "b": "y"})
	assert.ElementsMatch(t, []string{"a", "b"}, sc.ScopeIDs())
}

func TestScanContextInstanceName(t *testing.T) {
	sc := testScanContext(testPolicy(), map[string]string{"host-1": "web-1"})
	assert.Equal(t, "web-1", sc.InstanceName("host-1"))
	assert.Equal(t, "host-9", sc.InstanceName("host-9"))
}

func TestSeriesInstanceIDCompositeKeys(t *testing.T) {
	s := model.Series{Metric: map[string]string{"host": "h1", "device": "sda"}}
	assert.Equal(t, "h1|sda", s.InstanceID([]string{"host", "device"}))
	assert.Equal(t, "h1", s.InstanceID([]string{"host"}))
}
