package scan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policyscan",
		Name:      "scans_total",
		Help:      "Policy scan runs by result.",
	}, []string{"result"})

	eventsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "policyscan",
		Name:      "events_created_total",
		Help:      "Detection events persisted.",
	})

	alertsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "policyscan",
		Name:      "alerts_created_total",
		Help:      "Alerts opened by scans.",
	})
)
