package flow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var actionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "flow_actions_total",
		Help: "Total number of sign-in flow actions by provider, action and result",
	},
	[]string{"provider", "action", "result"},
)
