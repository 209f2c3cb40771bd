package imagepulse

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsRecordedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagepulse_events_recorded_total",
		Help: "The total number of pull events recorded",
	})
	pullsCountMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagepulse_pulls_total",
		Help: "The total number of docker pulls executed by the worker",
	})
	errorsTotalMetric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagepulse_errors_total",
		Help: "The total number of errors found",
	})
)
