package model

import "fmt"

// ConfigError signals a broken policy definition (unknown algorithm,
// invalid period, missing metric). Fatal: the scan aborts before any query.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config error: %s", e.Message) }

// BackendQueryError signals an unreachable or malformed time-series
// backend response. Isolated per phase.
type BackendQueryError struct {
	Query string
	Err   error
}

func (e *BackendQueryError) Error() string {
	return fmt.Sprintf("backend query failed [%s]: %v", e.Query, e.Err)
}

func (e *BackendQueryError) Unwrap() error { return e.Err }

// PersistenceError signals a failed bulk write.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed [%s]: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotificationError is always caught and logged, never propagated.
type NotificationError struct {
	ChannelID string
	Err       error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification failed [channel %s]: %v", e.ChannelID, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
