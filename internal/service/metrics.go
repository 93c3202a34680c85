package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 缺勤扫描结果
const (
	outcomeWaiting  = "waiting"
	outcomeAttended = "attended"
	outcomeExtended = "extended"
	outcomeUnbooked = "unbooked"
	outcomeSkipped  = "skipped"
	outcomeFailed   = "failed"
)

var (
	noShowOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "suncoop",
		Subsystem: "auto_unbook",
		Name:      "shift_evaluations_total",
		Help:      "Shifts evaluated by the no-show sweep, by outcome.",
	}, []string{"outcome"})

	autoClockEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "suncoop",
		Subsystem: "wifi",
		Name:      "auto_clock_events_total",
		Help:      "Automatic clock-in/out actions, by action and result.",
	}, []string{"action", "result"})
)
