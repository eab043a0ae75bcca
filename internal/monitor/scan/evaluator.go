package scan

import (
	"fmt"
	"os"
	"strconv"

	"github.com/opsless/policyscan/internal/monitor/model"
	"github.com/opsless/policyscan/internal/monitor/unit"
)

// thresholdWindow is the number of trailing points that must all satisfy
// a threshold for it to fire.
const thresholdWindow = 1

var thresholdMethods = map[string]func(v, t float64) bool{
	">=": func(v, t float64) bool { return v >= t },
	"<=": func(v, t float64) bool { return v <= t },
	">":  func(v, t float64) bool { return v > t },
	"<":  func(v, t float64) bool { return v < t },
	"==": func(v, t float64) bool { return v == t },
	"!=": func(v, t float64) bool { return v != t },
}

// EvaluateThresholds classifies each in-scope series as abnormal or
// normal. Pure: identical inputs always yield identical partitions.
// Series are re-filtered against the scope even though the query was
// already constrained by the same keys.
func EvaluateThresholds(series []model.Series, sc *ScanContext) (alertEvents, infoEvents []*model.ScanEvent, err error) {
	for i := range series {
		s := series[i]
		instanceID := s.InstanceID(sc.Keys)
		if sc.Scope != nil {
			if _, ok := sc.Scope[instanceID]; !ok {
				continue
			}
		}
		if len(s.Values) < thresholdWindow {
			continue
		}
		window := s.Values[len(s.Values)-thresholdWindow:]
		raw := &model.Series{Metric: s.Metric, Values: window}
		last := window[len(window)-1]

		event, evalErr := classify(sc, instanceID, window, last, raw)
		if evalErr != nil {
			return nil, nil, evalErr
		}
		if event.Level == model.LevelInfo {
			infoEvents = append(infoEvents, event)
		} else {
			alertEvents = append(alertEvents, event)
		}
	}
	return alertEvents, infoEvents, nil
}

func classify(sc *ScanContext, instanceID string, window []model.Point, last model.Point, raw *model.Series) (*model.ScanEvent, error) {
	value := last.Value
	for _, th := range sc.Policy.Thresholds {
		method, ok := thresholdMethods[th.Method]
		if !ok {
			return nil, &model.ConfigError{Message: fmt.Sprintf("invalid threshold method: %s", th.Method)}
		}
		matched := true
		for _, pt := range window {
			if !method(pt.Value, th.Value) {
				matched = false
				break
			}
		}
		if matched {
			return &model.ScanEvent{
				Kind:       model.KindThreshold,
				InstanceID: instanceID,
				Value:      &value,
				Level:      th.Level,
				Content:    renderContent(sc.Policy.AlertName, sc, instanceID, th.Level, &value),
				RawData:    raw,
			}, nil
		}
	}
	return &model.ScanEvent{
		Kind:       model.KindThreshold,
		InstanceID: instanceID,
		Value:      &value,
		Level:      model.LevelInfo,
		Content:    model.LevelInfo,
		RawData:    raw,
	}, nil
}

// DetectNoData emits a no-data event for every scoped instance missing
// from the aggregation result. Only meaningful with a non-empty scope;
// no-data detection over an unbounded domain is undefined.
func DetectNoData(result map[string]model.AggregateValue, sc *ScanContext) []*model.ScanEvent {
	var events []*model.ScanEvent
	tmpl := sc.Policy.NoDataAlertName
	if tmpl == "" {
		tmpl = "no data"
	}
	for instanceID := range sc.Scope {
		if _, ok := result[instanceID]; ok {
			continue
		}
		events = append(events, &model.ScanEvent{
			Kind:       model.KindNoData,
			InstanceID: instanceID,
			Value:      nil,
			Level:      model.LevelNoData,
			Content:    renderContent(tmpl, sc, instanceID, noDataDisplayLevel(sc.Policy), nil),
		})
	}
	return events
}

// displayUnit is the label shown after values in alert content. Values
// are converted to the calculation unit before classification, so that
// unit wins when both are set.
func displayUnit(p *model.Policy) string {
	u := p.CalculationUnit
	if u == "" {
		u = p.MetricUnit
	}
	if u == "" {
		return ""
	}
	return unit.DisplayUnit(u)
}

func noDataDisplayLevel(p *model.Policy) string {
	if p.NoDataLevel != "" {
		return p.NoDataLevel
	}
	return model.LevelWarning
}

// renderContent substitutes ${var} placeholders in an alert template.
// Unknown variables are left intact so a template typo stays visible in
// the alert content.
func renderContent(tmpl string, sc *ScanContext, instanceID, level string, value *float64) string {
	if tmpl == "" {
		return tmpl
	}
	vars := map[string]string{
		"instance_id":    instanceID,
		"instance_name":  sc.InstanceName(instanceID),
		"monitor_object": sc.Policy.MonitorObjectName,
		"metric_name":    sc.MetricName,
		"level":          level,
		"unit":           displayUnit(sc.Policy),
	}
	if value != nil {
		vars["value"] = strconv.FormatFloat(*value, 'f', -1, 64)
	} else {
		vars["value"] = ""
	}
	return os.Expand(tmpl, func(key string) string {
		if v, ok := vars[key]; ok {
			return v
		}
		return "${" + key + "}"
	})
}
