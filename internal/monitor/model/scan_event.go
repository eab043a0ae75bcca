package model

// EventKind tags the detection path that produced a ScanEvent.
type EventKind int

const (
	KindThreshold EventKind = iota
	KindNoData
)

// ScanEvent is a classified detection produced by one scan run, before
// persistence. AlertID is zero until lifecycle processing resolves it;
// an event whose AlertID is still zero at persistence time is dropped.
type ScanEvent struct {
	Kind       EventKind
	InstanceID string
	Value      *float64
	Level      string
	Content    string
	RawData    *Series
	AlertID    int64
	EventID    string // set once the event row is persisted
}

// Abnormal reports whether the event should open or feed an alert.
// Info events only drive recovery counting.
func (e *ScanEvent) Abnormal() bool {
	return e.Kind == KindNoData || e.Level != LevelInfo
}
