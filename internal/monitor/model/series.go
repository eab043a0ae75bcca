package model

// Point is a single sample from the time-series backend.
type Point struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// Series is one labeled time series from a range or aggregate query.
type Series struct {
	Metric map[string]string `json:"metric"`
	Values []Point           `json:"values"`
}

// InstanceID joins the values of the given identity label keys into the
// canonical instance key. A single key yields the bare label value.
func (s *Series) InstanceID(keys []string) string {
	if len(keys) == 0 {
		return s.Metric["instance_id"]
	}
	id := s.Metric[keys[0]]
	for _, k := range keys[1:] {
		id += "|" + s.Metric[k]
	}
	return id
}

// LastValue returns the most recent sample, if any.
func (s *Series) LastValue() (Point, bool) {
	if len(s.Values) == 0 {
		return Point{}, false
	}
	return s.Values[len(s.Values)-1], true
}

// AggregateValue is one instance's latest aggregated sample plus the raw
// series kept as evidence.
type AggregateValue struct {
	Value   float64
	RawData *Series
}
