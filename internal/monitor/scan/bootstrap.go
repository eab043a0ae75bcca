package scan

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/opsless/policyscan/internal/monitor/model"
)

// PolicyUpserter persists bootstrap policies keyed by name.
type PolicyUpserter interface {
	UpsertByName(ctx context.Context, p *model.Policy) error
}

type policyFile struct {
	Policies []policySpec `yaml:"policies"`
}

type periodSpec struct {
	Type  string `yaml:"type"`
	Value int    `yaml:"value"`
}

type policySpec struct {
	Name              string `yaml:"name"`
	MonitorObjectID   int64  `yaml:"monitor_object_id"`
	MonitorObjectName string `yaml:"monitor_object_name"`
	Enable            bool   `yaml:"enable"`
	Source            *struct {
		Type   string   `yaml:"type"`
		Values []string `yaml:"values"`
	} `yaml:"source"`
	Period               *periodSpec `yaml:"period"`
	NoDataPeriod         *periodSpec `yaml:"no_data_period"`
	NoDataRecoveryPeriod *periodSpec `yaml:"no_data_recovery_period"`
	Algorithm            string      `yaml:"algorithm"`
	QueryCondition       struct {
		Type           string   `yaml:"type"`
		Query          string   `yaml:"query"`
		MetricID       string   `yaml:"metric_id"`
		InstanceIDKeys []string `yaml:"instance_id_keys"`
		Filter         []struct {
			Name   string `yaml:"name"`
			Method string `yaml:"method"`
			Value  string `yaml:"value"`
		} `yaml:"filter"`
	} `yaml:"query_condition"`
	Thresholds []struct {
		Method string  `yaml:"method"`
		Value  float64 `yaml:"value"`
		Level  string  `yaml:"level"`
	} `yaml:"thresholds"`
	RecoveryCondition int      `yaml:"recovery_condition"`
	NoDataLevel       string   `yaml:"no_data_level"`
	NoDataAlert       int      `yaml:"no_data_alert"`
	AlertName         string   `yaml:"alert_name"`
	NoDataAlertName   string   `yaml:"no_data_alert_name"`
	Notice            bool     `yaml:"notice"`
	NoticeTypeID      string   `yaml:"notice_type_id"`
	NoticeUsers       []string `yaml:"notice_users"`
	MetricUnit        string   `yaml:"metric_unit"`
	CalculationUnit   string   `yaml:"calculation_unit"`
	CollectType       string   `yaml:"collect_type"`
	EnableAlerts      []string `yaml:"enable_alerts"`
}

// LoadPolicies seeds policies from a YAML file on startup, upserting by
// name so redeploys converge instead of duplicating. A missing path is
// not an error; an unreadable or invalid file is.
func LoadPolicies(ctx context.Context, path string, store PolicyUpserter) (int, error) {
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", path).Msg("policy file not found, skipping bootstrap")
			return 0, nil
		}
		return 0, fmt.Errorf("read policy file: %w", err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse policy file: %w", err)
	}

	count := 0
	for i := range file.Policies {
		spec := &file.Policies[i]
		if spec.Name == "" {
			return count, &model.ConfigError{Message: fmt.Sprintf("policy %d has no name", i)}
		}
		p, err := spec.toPolicy()
		if err != nil {
			return count, err
		}
		if err := store.UpsertByName(ctx, p); err != nil {
			return count, err
		}
		count++
	}
	if count > 0 {
		log.Info().Int("count", count).Str("path", path).Msg("bootstrapped policies")
	}
	return count, nil
}

func (s *policySpec) toPolicy() (*model.Policy, error) {
	if s.Period == nil {
		return nil, &model.ConfigError{Message: fmt.Sprintf("policy %s has no period", s.Name)}
	}
	p := &model.Policy{
		Name:              s.Name,
		MonitorObjectID:   s.MonitorObjectID,
		MonitorObjectName: s.MonitorObjectName,
		Enable:            s.Enable,
		Period:            &model.Period{Type: s.Period.Type, Value: s.Period.Value},
		Algorithm:         s.Algorithm,
		RecoveryCondition: s.RecoveryCondition,
		NoDataLevel:       s.NoDataLevel,
		NoDataAlert:       s.NoDataAlert,
		AlertName:         s.AlertName,
		NoDataAlertName:   s.NoDataAlertName,
		Notice:            s.Notice,
		NoticeTypeID:      s.NoticeTypeID,
		NoticeUsers:       s.NoticeUsers,
		MetricUnit:        s.MetricUnit,
		CalculationUnit:   s.CalculationUnit,
		CollectType:       s.CollectType,
		EnableAlerts:      s.EnableAlerts,
	}
	if len(p.EnableAlerts) == 0 {
		p.EnableAlerts = []string{model.EnableThreshold}
	}
	if s.Source != nil {
		p.Source = &model.Source{Type: s.Source.Type, Values: s.Source.Values}
	}
	if s.NoDataPeriod != nil {
		p.NoDataPeriod = &model.Period{Type: s.NoDataPeriod.Type, Value: s.NoDataPeriod.Value}
	}
	if s.NoDataRecoveryPeriod != nil {
		p.NoDataRecoveryPeriod = &model.Period{Type: s.NoDataRecoveryPeriod.Type, Value: s.NoDataRecoveryPeriod.Value}
	}
	p.QueryCondition = model.QueryCondition{
		Type:           s.QueryCondition.Type,
		Query:          s.QueryCondition.Query,
		MetricID:       s.QueryCondition.MetricID,
		InstanceIDKeys: s.QueryCondition.InstanceIDKeys,
	}
	for _, f := range s.QueryCondition.Filter {
		p.QueryCondition.Filter = append(p.QueryCondition.Filter, model.FilterItem{
			Name: f.Name, Method: f.Method, Value: f.Value,
		})
	}
	for _, t := range s.Thresholds {
		p.Thresholds = append(p.Thresholds, model.Threshold{Method: t.Method, Value: t.Value, Level: t.Level})
	}
	if _, err := p.Period.Seconds(); err != nil {
		return nil, err
	}
	return p, nil
}
