package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 锁定事件计数，暴露在 /metrics
var lockoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "jobshield",
	Subsystem: "auth",
	Name:      "lockouts_total",
	Help:      "Number of accounts locked after repeated login failures",
})

func recordLockout() {
	lockoutsTotal.Inc()
}
