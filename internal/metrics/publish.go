package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "phportfolio",
			Subsystem: "publish",
			Name:      "attempts_total",
			Help:      "发布尝试总数（按终态）。",
		},
		[]string{"status"},
	)

	publishStepFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "phportfolio",
			Subsystem: "publish",
			Name:      "step_failures_total",
			Help:      "发布各步骤失败总数（按步骤与失败类别）。",
		},
		[]string{"step", "kind"},
	)
)

// ObservePublish 记录一次发布尝试的终态。
func ObservePublish(status string) {
	publishTotal.WithLabelValues(status).Inc()
}

// ObservePublishStepFailure 记录一次步骤失败。
func ObservePublishStepFailure(step, kind string) {
	publishStepFailedTotal.WithLabelValues(step, kind).Inc()
}
