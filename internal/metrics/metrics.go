// Package metrics описывает Prometheus-метрики сервиса.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "companion"

// Исходы обработки входящего сообщения.
const (
	OutcomeReplied    = "replied"
	OutcomeCrisis     = "crisis"
	OutcomeNoAccess   = "no_access"
	OutcomeDailyLimit = "daily_limit"
	OutcomeExpired    = "session_expired"
	OutcomeFailed     = "failed"
)

// Metrics набор коллекторов сервиса.
type Metrics struct {
	Messages         *prometheus.CounterVec
	CrisisDetected   prometheus.Counter
	SessionsFinished *prometheus.CounterVec
	Reminders        *prometheus.CounterVec
	StoreSaveErrors  *prometheus.CounterVec
	StoreDropped     *prometheus.CounterVec
	ReplyFallbacks   prometheus.Counter
	ActiveSessions   prometheus.Gauge
	SweepDuration    *prometheus.HistogramVec
}

// New создает и регистрирует коллекторы в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound messages by handling outcome.",
		}, []string{"outcome"}),
		CrisisDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crisis_detected_total",
			Help:      "Messages routed to the safety resources response.",
		}),
		SessionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Conversation sessions removed from memory by reason.",
		}, []string{"reason"}),
		Reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_reminders_total",
			Help:      "Subscription expiry reminders by threshold and delivery result.",
		}, []string{"threshold", "result"}),
		StoreSaveErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_save_errors_total",
			Help:      "Failed collection writes by record family.",
		}, []string{"family"}),
		StoreDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_dropped_records_total",
			Help:      "Malformed records dropped on load by record family.",
		}, []string{"family"}),
		ReplyFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reply_fallbacks_total",
			Help:      "Replies replaced by fallback text after a generator failure.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Conversation sessions currently held in memory.",
		}),
		SweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Background sweep duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sweep"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Messages,
			m.CrisisDetected,
			m.SessionsFinished,
			m.Reminders,
			m.StoreSaveErrors,
			m.StoreDropped,
			m.ReplyFallbacks,
			m.ActiveSessions,
			m.SweepDuration,
		)
	}
	return m
}

// NewNop создает незарегистрированные коллекторы для тестов.
func NewNop() *Metrics {
	return New(nil)
}

// SaveErrorHook счетчик неудачных записей для storage.WithSaveErrorHook.
func (m *Metrics) SaveErrorHook(family string) {
	m.StoreSaveErrors.WithLabelValues(family).Inc()
}

// DropHook счетчик отброшенных записей для storage.WithDropHook.
func (m *Metrics) DropHook(family string) {
	m.StoreDropped.WithLabelValues(family).Inc()
}
