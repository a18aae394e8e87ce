package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CodesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tvlink_activation_codes_created_total",
		Help: "Activation codes issued to display devices.",
	})

	CodesConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tvlink_activation_codes_consumed_total",
		Help: "Activation codes successfully bound to a user.",
	})

	ConsumeConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tvlink_activation_consume_conflicts_total",
		Help: "Consume attempts rejected because the code was already consumed.",
	})

	ConsumeRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tvlink_activation_consume_rejected_total",
		Help: "Consume attempts rejected for an expired or unknown code.",
	})

	ExpiredPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tvlink_activation_codes_pruned_total",
		Help: "Expired activation codes removed by the cleanup job.",
	})
)
