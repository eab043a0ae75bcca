package model

import "time"

// Alert is the stateful record of one abnormal condition per
// (policy, instance, alert_type). Lifecycle: (absent) -> new -> recovered.
type Alert struct {
	ID             int64
	PolicyID       int64
	InstanceID     string
	InstanceName   string
	AlertType      string // alert | no_data
	Level          string
	Value          *float64
	Content        string
	Status         string // new | recovered
	StartEventTime time.Time
	EndEventTime   *time.Time
	InfoEventCount int
	Operator       string
}

// Event is an immutable per-run detection record linked to an alert.
type Event struct {
	ID           string // uuid hex, generated before insert
	AlertID      int64
	PolicyID     int64
	InstanceID   string
	Value        *float64
	Level        string
	Content      string
	NoticeResult bool
	EventTime    time.Time
}

// EventRawData is the audit payload behind one event. One row per event.
type EventRawData struct {
	EventID string
	Data    *Series
}

// SnapshotEntry is one element of an alert's evidence timeline.
type SnapshotEntry struct {
	Type         string  `json:"type"` // pre_alert | event | info | no_data
	EventID      string  `json:"event_id,omitempty"`
	EventTime    string  `json:"event_time,omitempty"`
	SnapshotTime string  `json:"snapshot_time"`
	RawData      *Series `json:"raw_data"`
}

// AlertMetricSnapshot is the append-only evidence timeline of one alert.
// Entries are deduplicated by event id (event entries) or snapshot time
// (info/no_data entries) and never reordered or deleted.
type AlertMetricSnapshot struct {
	AlertID    int64
	PolicyID   int64
	InstanceID string
	Entries    []SnapshotEntry
}

// HasEvent reports whether an event entry for the id already exists.
func (s *AlertMetricSnapshot) HasEvent(eventID string) bool {
	for _, e := range s.Entries {
		if e.Type == SnapshotTypeEvent && e.EventID == eventID {
			return true
		}
	}
	return false
}

// HasEntryAt reports whether an entry of the given type already carries
// the snapshot time.
func (s *AlertMetricSnapshot) HasEntryAt(entryType, snapshotTime string) bool {
	for _, e := range s.Entries {
		if e.Type == entryType && e.SnapshotTime == snapshotTime {
			return true
		}
	}
	return false
}
