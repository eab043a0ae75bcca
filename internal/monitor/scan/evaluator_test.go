package scan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsless/policyscan/internal/monitor/model"
)

func TestEvaluateThresholds(t *testing.T) {
	p := testPolicy()
	sc := testScanContext(p, nil)

	series := []model.Series{
		makeSeries("host-1", 50, 97),
		makeSeries("host-2", 85, 85),
		makeSeries("host-3", 10, 20),
	}

	alertEvents, infoEvents, err := EvaluateThresholds(series, sc)
	require.NoError(t, err)
	require.Len(t, alertEvents, 2)
	require.Len(t, infoEvents, 1)

	byInstance := map[string]*model.ScanEvent{}
	for _, e := range alertEvents {
		byInstance[e.InstanceID] = e
	}
	assert.Equal(t, model.LevelCritical, byInstance["host-1"].Level)
	assert.Equal(t, 97.0, *byInstance["host-1"].Value)
	assert.Equal(t, model.LevelWarning, byInstance["host-2"].Level)

	info := infoEvents[0]
	assert.Equal(t, "host-3", info.InstanceID)
	assert.Equal(t, model.LevelInfo, info.Level)
	assert.Equal(t, "info", info.Content)
	assert.Equal(t, 20.0, *info.Value)
}

func TestEvaluateThresholdsFirstMatchWins(t *testing.T) {
	p := testPolicy()
	// both thresholds match 97; the first configured one decides
	sc := testScanContext(p, nil)

	alertEvents, _, err := EvaluateThresholds([]model.Series{makeSeries("h", 97)}, sc)
	require.NoError(t, err)
	require.Len(t, alertEvents, 1)
	assert.Equal(t, model.LevelCritical, alertEvents[0].Level)
}

func TestEvaluateThresholdsScopeFilter(t *testing.T) {
	p := testPolicy()
	p.Source = &model.Source{Type: model.SourceTypeInstance, Values: []string{"host-1"}}
	sc := testScanContext(p, map[string]string{"host-1": "web-1"})

	series := []model.Series{
		makeSeries("host-1", 97),
		makeSeries("host-9", 99), // out of scope
	}
	alertEvents, infoEvents, err := EvaluateThresholds(series, sc)
	require.NoError(t, err)
	require.Len(t, alertEvents, 1)
	assert.Empty(t, infoEvents)
	assert.Equal(t, "host-1", alertEvents[0].InstanceID)
}

func TestEvaluateThresholdsDeterministic(t *testing.T) {
	sc := testScanContext(testPolicy(), nil)
	series := []model.Series{makeSeries("a", 97), makeSeries("b", 10)}

	a1, i1, err := EvaluateThresholds(series, sc)
	require.NoError(t, err)
	a2, i2, err := EvaluateThresholds(series, sc)
	require.NoError(t, err)
	require.Len(t, a2, len(a1))
	require.Len(t, i2, len(i1))
	assert.Equal(t, a1[0].Level, a2[0].Level)
	assert.Equal(t, *a1[0].Value, *a2[0].Value)
}

func TestEvaluateThresholdsInvalidMethod(t *testing.T) {
	p := testPolicy()
	p.Thresholds = []model.Threshold{{Method: "~=", Value: 1, Level: model.LevelWarning}}
	sc := testScanContext(p, nil)

	_, _, err := EvaluateThresholds([]model.Series{makeSeries("h", 5)}, sc)
	require.Error(t, err)
	var cfgErr *model.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestEvaluateThresholdsEmptySeries(t *testing.T) {
	sc := testScanContext(testPolicy(), nil)
	alertEvents, infoEvents, err := EvaluateThresholds([]model.Series{{Metric: map[string]string{"instance_id": "h"}}}, sc)
	require.NoError(t, err)
	assert.Empty(t, alertEvents)
	assert.Empty(t, infoEvents)
}

func TestEvaluateThresholdsContentTemplate(t *testing.T) {
	p := testPolicy()
	p.AlertName = "${instance_name} ${metric_name} at ${value} (${level})"
	sc := testScanContext(p, map[string]string{"host-1": "web-1"})

	alertEvents, _, err := EvaluateThresholds([]model.Series{makeSeries("host-1", 97)}, sc)
	require.NoError(t, err)
	require.Len(t, alertEvents, 1)
	assert.Equal(t, "web-1 cpu_usage at 97 (critical)", alertEvents[0].Content)
}

func TestEvaluateThresholdsUnknownTemplateVariableKept(t *testing.T) {
	p := testPolicy()
	p.AlertName = "${instance_name} ${hostname} breach"
	sc := testScanContext(p, map[string]string{"host-1": "web-1"})

	alertEvents, _, err := EvaluateThresholds([]model.Series{makeSeries("host-1", 97)}, sc)
	require.NoError(t, err)
	require.Len(t, alertEvents, 1)
	assert.Equal(t, "web-1 ${hostname} breach", alertEvents[0].Content)
}

func TestDetectNoData(t *testing.T) {
	p := testPolicy()
	p.NoDataLevel = model.LevelError
	p.NoDataAlertName = "${instance_name} silent"
	sc := testScanContext(p, map[string]string{"host-1": "web-1", "host-2": "web-2"})

	result := map[string]model.AggregateValue{"host-1": {Value: 1}}
	events := DetectNoData(result, sc)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, model.KindNoData, e.Kind)
	assert.Equal(t, "host-2", e.InstanceID)
	assert.Equal(t, model.LevelNoData, e.Level)
	assert.Nil(t, e.Value)
	assert.Equal(t, "web-2 silent", e.Content)
	assert.True(t, e.Abnormal())
}

func TestDetectNoDataAllReporting(t *testing.T) {
	sc := testScanContext(testPolicy(), map[string]string{"host-1": "web-1"})
	events := DetectNoData(map[string]model.AggregateValue{"host-1": {Value: 1}}, sc)
	assert.Empty(t, events)
}

func TestDetectNoDataDefaultContent(t *testing.T) {
	sc := testScanContext(testPolicy(), map[string]string{"host-1": "web-1"})
	events := DetectNoData(nil, sc)
	require.Len(t, events, 1)
	assert.Equal(t, "no data", events[0].Content)
}

func TestNoDataDisplayLevel(t *testing.T) {
	p := testPolicy()
	assert.Equal(t, model.LevelWarning, noDataDisplayLevel(p))
	p.NoDataLevel = model.LevelCritical
	assert.Equal(t, model.LevelCritical, noDataDisplayLevel(p))
}
