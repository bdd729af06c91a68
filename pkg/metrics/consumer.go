package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotifierDuration tracks the latency of handling one run event, SMTP included
	// SMTP relays with greylisting can take tens of seconds
	NotifierDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notifier_processing_duration_seconds",
		Help:    "Time taken to deliver all notifications of a run event",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"status"}) // status: success, partial, fatal

	// NotifierEvents tracks the throughput and result of event consumption
	NotifierEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_events_total",
		Help: "Total number of run events consumed by the notifier",
	}, []string{"status"}) // status: success, partial, fatal

	// NotificationsSent counts individual emails by result
	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_emails_total",
		Help: "Number of notification emails by result",
	}, []string{"result"}) // result: sent, failed
)
