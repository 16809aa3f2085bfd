package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GenerationMetrics records receipt generation outcomes.
type GenerationMetrics struct {
	slots      *prometheus.CounterVec
	units      *prometheus.HistogramVec
	retries    *prometheus.CounterVec
	deadLetter prometheus.Counter
	messages   *prometheus.CounterVec
}

// NewGenerationMetrics registers the generation metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewGenerationMetrics(reg prometheus.Registerer) *GenerationMetrics {
	if reg == nil {
		return &GenerationMetrics{}
	}
	slots := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_slot_outcomes_total",
		Help: "Generation attempts per recipient slot, by role and resulting state.",
	}, []string{"role", "state"})
	units := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "receipt_generation_duration_seconds",
		Help:    "Duration of a generation run for one unit, by resulting status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_retry_enqueue_total",
		Help: "Retry enqueue attempts, by result.",
	}, []string{"result"})
	deadLetter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "receipt_dead_letters_total",
		Help: "Units moved to a dead-letter status.",
	})
	messages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "receipt_messages_total",
		Help: "Queue deliveries handled, by subscription and outcome.",
	}, []string{"subscription", "outcome"})
	reg.MustRegister(slots, units, retries, deadLetter, messages)
	return &GenerationMetrics{
		slots:      slots,
		units:      units,
		retries:    retries,
		deadLetter: deadLetter,
		messages:   messages,
	}
}

// ObserveSlot counts one slot attempt.
func (g *GenerationMetrics) ObserveSlot(role, state string) {
	if g == nil || g.slots == nil {
		return
	}
	g.slots.WithLabelValues(normalizeLabel(role), normalizeLabel(state)).Inc()
}

// ObserveUnit records the duration of a generation run.
func (g *GenerationMetrics) ObserveUnit(status string, duration time.Duration) {
	if g == nil || g.units == nil {
		return
	}
	g.units.WithLabelValues(normalizeLabel(status)).Observe(duration.Seconds())
}

// IncRetryEnqueue counts a retry publish by result (ok, failed).
func (g *GenerationMetrics) IncRetryEnqueue(result string) {
	if g == nil || g.retries == nil {
		return
	}
	g.retries.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncDeadLetter counts a unit moved to TO_REVIEW or UNABLE_TO_SEND.
func (g *GenerationMetrics) IncDeadLetter() {
	if g == nil || g.deadLetter == nil {
		return
	}
	g.deadLetter.Inc()
}

// IncMessage counts a delivery by subscription and outcome (ack, nack, duplicate).
func (g *GenerationMetrics) IncMessage(subscription, outcome string) {
	if g == nil || g.messages == nil {
		return
	}
	g.messages.WithLabelValues(normalizeLabel(subscription), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
