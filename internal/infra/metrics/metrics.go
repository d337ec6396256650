package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the freemium funnel counters exported on /metrics.
type Metrics struct {
	scanAttempts    *prometheus.CounterVec
	paywallShown    *prometheus.CounterVec
	trialStarts     *prometheus.CounterVec
	remindersArmed  *prometheus.CounterVec
	remindersSent   *prometheus.CounterVec
	storageFailures *prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide metrics, registering them on first use.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{
		scanAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "glowcheck",
				Subsystem: "scans",
				Name:      "attempts_total",
				Help:      "Scan attempts by feature and outcome",
			},
			[]string{"feature", "outcome"},
		),
		paywallShown: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "glowcheck",
				Subsystem: "freemium",
				Name:      "paywall_triggers_total",
				Help:      "Paywall triggers by source",
			},
			[]string{"source"},
		),
		trialStarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "glowcheck",
				Subsystem: "freemium",
				Name:      "trial_starts_total",
				Help:      "Trials started by trigger",
			},
			[]string{"trigger"},
		),
		remindersArmed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "glowcheck",
				Subsystem: "reminders",
				Name:      "armed_total",
				Help:      "Reminders scheduled by template",
			},
			[]string{"template"},
		),
		remindersSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "glowcheck",
				Subsystem: "reminders",
				Name:      "sent_total",
				Help:      "Reminder deliveries by template and result",
			},
			[]string{"template", "result"},
		),
		storageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "glowcheck",
				Subsystem: "storage",
				Name:      "failures_total",
				Help:      "Logged-and-swallowed storage failures by operation",
			},
			[]string{"op"},
		),
	}

	prometheus.MustRegister(
		m.scanAttempts,
		m.paywallShown,
		m.trialStarts,
		m.remindersArmed,
		m.remindersSent,
		m.storageFailures,
	)

	return m
}

func (m *Metrics) ScanAttempt(feature, outcome string) {
	m.scanAttempts.WithLabelValues(orUnknown(feature), orUnknown(outcome)).Inc()
}

func (m *Metrics) PaywallShown(source string) {
	m.paywallShown.WithLabelValues(orUnknown(source)).Inc()
}

func (m *Metrics) TrialStarted(trigger string) {
	m.trialStarts.WithLabelValues(orUnknown(trigger)).Inc()
}

func (m *Metrics) ReminderArmed(template string) {
	m.remindersArmed.WithLabelValues(orUnknown(template)).Inc()
}

func (m *Metrics) ReminderSent(template, result string) {
	m.remindersSent.WithLabelValues(orUnknown(template), orUnknown(result)).Inc()
}

func (m *Metrics) StorageFailure(op string) {
	m.storageFailures.WithLabelValues(orUnknown(op)).Inc()
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
