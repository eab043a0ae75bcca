package model

// Alert levels ordered by severity. Events may additionally carry
// LevelNoData, which is not a severity and never escalates an alert.
const (
	LevelCritical = "critical"
	LevelError    = "error"
	LevelWarning  = "warning"
	LevelInfo     = "info"
	LevelNoData   = "no_data"
)

// LevelWeight orders severities for escalation decisions.
var LevelWeight = map[string]int{
	LevelCritical: 3,
	LevelError:    2,
	LevelWarning:  1,
	LevelInfo:     0,
}

const (
	AlertTypeThreshold = "alert"
	AlertTypeNoData    = "no_data"
)

const (
	AlertStatusNew       = "new"
	AlertStatusRecovered = "recovered"
)

// Enable flags on Policy.EnableAlerts.
const (
	EnableThreshold = "threshold"
	EnableNoData    = "no_data"
)

const (
	SourceTypeInstance     = "instance"
	SourceTypeOrganization = "organization"
)

const (
	SnapshotTypePreAlert = "pre_alert"
	SnapshotTypeEvent    = "event"
	SnapshotTypeInfo     = "info"
	SnapshotTypeNoData   = "no_data"
)

// RecoveryOperator marks alerts closed by the engine rather than a user.
const RecoveryOperator = "system"

const BulkBatchSize = 200
