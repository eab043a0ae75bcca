package model

import (
	"fmt"
	"time"
)

// Source restricts a policy to a set of instances or organizations.
// A nil Source means the policy is unconstrained.
type Source struct {
	Type   string   `json:"type"` // instance | organization
	Values []string `json:"values"`
}

// Period is a scan window expressed in policy units.
type Period struct {
	Type  string `json:"type"` // min | hour | day
	Value int    `json:"value"`
}

var periodSeconds = map[string]int64{
	"min":  60,
	"hour": 3600,
	"day":  86400,
}

func (p *Period) Seconds() (int64, error) {
	if p == nil {
		return 0, &ConfigError{Message: "policy period is empty"}
	}
	unit, ok := periodSeconds[p.Type]
	if !ok {
		return 0, &ConfigError{Message: fmt.Sprintf("invalid period type: %s", p.Type)}
	}
	return int64(p.Value) * unit, nil
}

// Step renders the period as a backend step string, dividing the window
// into the given number of points.
func (p *Period) Step(points int) (string, error) {
	if p == nil {
		return "", &ConfigError{Message: "policy period is empty"}
	}
	suffix := map[string]string{"min": "m", "hour": "h", "day": "d"}[p.Type]
	if suffix == "" {
		return "", &ConfigError{Message: fmt.Sprintf("invalid period type: %s", p.Type)}
	}
	if points < 1 {
		points = 1
	}
	return fmt.Sprintf("%d%s", p.Value/points, suffix), nil
}

type FilterItem struct {
	Name   string `json:"name"`
	Method string `json:"method"` // = | != | =~ | !~
	Value  string `json:"value"`
}

// QueryCondition describes how to fetch the policy's metric data.
// Type "pmq" carries a raw query; type "metric" references a Metric row
// whose query template and identity keys are resolved at scan time.
type QueryCondition struct {
	Type           string       `json:"type"` // pmq | metric
	Query          string       `json:"query,omitempty"`
	MetricID       string       `json:"metric_id,omitempty"`
	Filter         []FilterItem `json:"filter,omitempty"`
	InstanceIDKeys []string     `json:"instance_id_keys,omitempty"`
}

type Threshold struct {
	Method string  `json:"method"` // >= | <= | > | < | == | !=
	Value  float64 `json:"value"`
	Level  string  `json:"level"`
}

type Policy struct {
	ID                   int64
	Name                 string
	MonitorObjectID      int64
	MonitorObjectName    string
	Enable               bool
	Source               *Source
	Period               *Period
	NoDataPeriod         *Period
	NoDataRecoveryPeriod *Period
	Algorithm            string
	QueryCondition       QueryCondition
	Thresholds           []Threshold
	RecoveryCondition    int
	NoDataLevel          string
	NoDataAlert          int
	AlertName            string
	NoDataAlertName      string
	Notice               bool
	NoticeTypeID         string
	NoticeUsers          []string
	MetricUnit           string
	CalculationUnit      string
	CollectType          string
	LastRunTime          *time.Time // nil until the first scheduled run
	EnableAlerts         []string
}

func (p *Policy) ThresholdEnabled() bool { return p.hasEnable(EnableThreshold) }
func (p *Policy) NoDataEnabled() bool    { return p.hasEnable(EnableNoData) }

func (p *Policy) hasEnable(kind string) bool {
	for _, e := range p.EnableAlerts {
		if e == kind {
			return true
		}
	}
	return false
}

// UnitConversionNeeded reports whether raw values must be normalized into
// the calculation unit before threshold comparison.
func (p *Policy) UnitConversionNeeded() bool {
	return p.MetricUnit != "" && p.CalculationUnit != "" && p.MetricUnit != p.CalculationUnit
}

// Metric is a catalog entry referenced by metric-type query conditions.
type Metric struct {
	ID             string
	Name           string
	DisplayName    string
	Query          string
	InstanceIDKeys []string
}

func (m *Metric) Label() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Name
}

// Instance is a monitored entity. Owned externally, read-only here.
type Instance struct {
	ID              string
	Name            string
	MonitorObjectID int64
	Organizations   []string
}
