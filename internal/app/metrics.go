package app

import (
	"time"

	"lifeguard_alerts/internal/domain/notify"
)

// Metrics receives dispatch counters. The Prometheus implementation lives in infra/metrics.
type Metrics interface {
	AlertTriggered(outcome Outcome)
	ChannelSend(ch notify.Channel, ok bool, attempts int)
	DispatchCompleted(d time.Duration, partial bool)
	TestAlertSent(ch notify.Channel, ok bool)
}

type nopMetrics struct{}

func (nopMetrics) AlertTriggered(Outcome) {}
func (nopMetrics) ChannelSend(notify.Channel, bool, int) {}
func (nopMetrics) DispatchCompleted(time.Duration, bool) {}
func (nopMetrics) TestAlertSent(notify.Channel, bool) {}
