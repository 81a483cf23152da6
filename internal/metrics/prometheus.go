package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink with the Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	derivationsTotal      prometheus.Counter
	derivationErrorsTotal prometheus.Counter
	derivationDuration    prometheus.Histogram
	pendingReminders      prometheus.Gauge

	remindersFiredTotal prometheus.Counter
	actionsTotal        *prometheus.CounterVec

	triggersRegisteredTotal prometheus.Counter
	triggersCanceledTotal   prometheus.Counter

	syncRunsTotal *prometheus.CounterVec
	syncDuration  prometheus.Histogram
}

func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initReminderMetrics(reg)
	s.initTriggerMetrics(reg)
	s.initSyncMetrics(reg)
	return s
}

func (s *PrometheusSink) initReminderMetrics(reg prometheus.Registerer) {
	s.derivationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "calendard_reminder_derivations_total",
		Help: "Total number of reminder derivation runs.",
	})
	s.derivationErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "calendard_reminder_derivation_errors_total",
		Help: "Total number of failed reminder derivation runs.",
	})
	s.derivationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "calendard_reminder_derivation_duration_seconds",
		Help:    "Duration of each reminder derivation run in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})
	s.pendingReminders = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "calendard_reminder_records",
		Help: "Number of reminder records written by the last derivation run.",
	})
	s.remindersFiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "calendard_reminders_fired_total",
		Help: "Total number of reminder notifications shown.",
	})
	s.actionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calendard_reminder_actions_total",
		Help: "Total number of notification actions handled.",
	}, []string{"action"})

	s.register(reg, s.derivationsTotal, "calendard_reminder_derivations_total")
	s.register(reg, s.derivationErrorsTotal, "calendard_reminder_derivation_errors_total")
	s.register(reg, s.derivationDuration, "calendard_reminder_derivation_duration_seconds")
	s.register(reg, s.pendingReminders, "calendard_reminder_records")
	s.register(reg, s.remindersFiredTotal, "calendard_reminders_fired_total")
	s.register(reg, s.actionsTotal, "calendard_reminder_actions_total")
}

func (s *PrometheusSink) initTriggerMetrics(reg prometheus.Registerer) {
	s.triggersRegisteredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "calendard_triggers_registered_total",
		Help: "Total number of deferred triggers registered.",
	})
	s.triggersCanceledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "calendard_triggers_canceled_total",
		Help: "Total number of deferred triggers canceled.",
	})

	s.register(reg, s.triggersRegisteredTotal, "calendard_triggers_registered_total")
	s.register(reg, s.triggersCanceledTotal, "calendard_triggers_canceled_total")
}

func (s *PrometheusSink) initSyncMetrics(reg prometheus.Registerer) {
	s.syncRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calendard_sync_runs_total",
		Help: "Total number of reconciliation runs by resulting sync state.",
	}, []string{"state"})
	s.syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "calendard_sync_duration_seconds",
		Help:    "Duration of each reconciliation run in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	s.register(reg, s.syncRunsTotal, "calendard_sync_runs_total")
	s.register(reg, s.syncDuration, "calendard_sync_duration_seconds")
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

func (s *PrometheusSink) DerivationCompleted(duration time.Duration, records int, err error) {
	s.derivationsTotal.Inc()
	s.derivationDuration.Observe(duration.Seconds())
	if err != nil {
		s.derivationErrorsTotal.Inc()
		return
	}
	s.pendingReminders.Set(float64(records))
}

func (s *PrometheusSink) ReminderFired() {
	s.remindersFiredTotal.Inc()
}

func (s *PrometheusSink) ReminderAction(action string) {
	s.actionsTotal.WithLabelValues(action).Inc()
}

func (s *PrometheusSink) TriggersRegistered(n int) {
	s.triggersRegisteredTotal.Add(float64(n))
}

func (s *PrometheusSink) TriggersCanceled(n int) {
	s.triggersCanceledTotal.Add(float64(n))
}

func (s *PrometheusSink) SyncCompleted(state string, duration time.Duration) {
	s.syncRunsTotal.WithLabelValues(state).Inc()
	s.syncDuration.Observe(duration.Seconds())
}
