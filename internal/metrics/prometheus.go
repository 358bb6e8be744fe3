// SPDX-License-Identifier: AGPL-3.0-or-later
// accessbroker - subscription entitlement lifecycle engine
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector exported by the broker. The
// shape (struct of collectors + register()) follows the teacher's
// internal/metrics/prometheus.go; the collectors themselves are this
// domain's: scheduler ticks, adapter calls, arbiter switches, and payments.
type Metrics struct {
	SchedulerTicksTotal       *prometheus.CounterVec
	SchedulerJobDuration      *prometheus.HistogramVec
	SchedulerLockContended    prometheus.Counter

	ArbiterSwitchesTotal      prometheus.Counter
	ArbiterTickDuration       prometheus.Histogram
	ArbiterActiveSessions     prometheus.Gauge

	AdapterCallsTotal         *prometheus.CounterVec
	AdapterCallDuration       *prometheus.HistogramVec

	NotificationsSentTotal    *prometheus.CounterVec

	PaymentsProcessedTotal    *prometheus.CounterVec

	ReferralEarningsCreditedTotal *prometheus.CounterVec
}

// NewMetrics constructs and registers every collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		SchedulerTicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accessbroker_scheduler_ticks_total",
			Help: "Scheduler ticks, labeled by whether the advisory lock was acquired",
		}, []string{"locked"}),
		SchedulerJobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accessbroker_scheduler_job_duration_seconds",
			Help:    "Duration of each ordered scheduler job",
			Buckets: prometheus.DefBuckets,
		}, []string{"job", "status"}),
		SchedulerLockContended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accessbroker_scheduler_lock_contended_total",
			Help: "Ticks where the advisory lock was already held by another process",
		}),

		ArbiterSwitchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accessbroker_arbiter_device_switches_total",
			Help: "Total device switches detected by the session arbiter",
		}),
		ArbiterTickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "accessbroker_arbiter_tick_duration_seconds",
			Help:    "Duration of each session-arbiter tick",
			Buckets: prometheus.DefBuckets,
		}),
		ArbiterActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "accessbroker_arbiter_active_sessions",
			Help: "Current number of active region-VPN sessions",
		}),

		AdapterCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accessbroker_adapter_calls_total",
			Help: "Calls to the WireGuard/Xray/payments SSH or HTTP adapters",
		}, []string{"adapter", "operation", "status"}),
		AdapterCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accessbroker_adapter_call_duration_seconds",
			Help:    "Duration of adapter calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"adapter", "operation"}),

		NotificationsSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accessbroker_notifications_sent_total",
			Help: "Notifications dispatched, labeled by kind",
		}, []string{"kind", "status"}),

		PaymentsProcessedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accessbroker_payments_processed_total",
			Help: "Payments processed through the gateway adapter",
		}, []string{"status"}),

		ReferralEarningsCreditedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accessbroker_referral_earnings_credited_total",
			Help: "Referral earnings credited, labeled by tier percent",
		}, []string{"tier_percent"}),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	prometheus.MustRegister(
		m.SchedulerTicksTotal,
		m.SchedulerJobDuration,
		m.SchedulerLockContended,
		m.ArbiterSwitchesTotal,
		m.ArbiterTickDuration,
		m.ArbiterActiveSessions,
		m.AdapterCallsTotal,
		m.AdapterCallDuration,
		m.NotificationsSentTotal,
		m.PaymentsProcessedTotal,
		m.ReferralEarningsCreditedTotal,
	)
}
