package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Webhook outcome labels.
const (
	OutcomeProcessed       = "processed"
	OutcomeIgnored         = "ignored"
	OutcomeDuplicate       = "duplicate"
	OutcomeInvalidMetadata = "invalid_metadata"
	OutcomeFailed          = "failed"
	OutcomeSent            = "sent"
	OutcomeSkipped         = "skipped"
	OutcomeUntrusted       = "untrusted"
)

// SettlementMetrics tracks the checkout-to-booking pipeline.
type SettlementMetrics struct {
	bookingsCreated      *prometheus.CounterVec
	bookingFailures      *prometheus.CounterVec
	commissionsRecorded  prometheus.Counter
	webhookEvents        *prometheus.CounterVec
	notificationsHandled *prometheus.CounterVec
}

// NewSettlementMetrics registers the pipeline metrics. A nil registerer yields a no-op recorder.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	m := &SettlementMetrics{
		bookingsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_bookings_created_total",
			Help: "Bookings materialized from completed checkout sessions.",
		}, []string{"mode"}),
		bookingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settlement_booking_failures_total",
			Help: "Booking lines that failed to persist or settle.",
		}, []string{"mode"}),
		commissionsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "settlement_commissions_recorded_total",
			Help: "Establishment commission records written.",
		}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Payment webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		notificationsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Notification deliveries by audience and outcome.",
		}, []string{"audience", "outcome"}),
	}
	reg.MustRegister(m.bookingsCreated, m.bookingFailures, m.commissionsRecorded, m.webhookEvents, m.notificationsHandled)
	return m
}

func (m *SettlementMetrics) BookingCreated(mode string) {
	if m == nil || m.bookingsCreated == nil {
		return
	}
	m.bookingsCreated.WithLabelValues(label(mode)).Inc()
}

func (m *SettlementMetrics) BookingFailed(mode string) {
	if m == nil || m.bookingFailures == nil {
		return
	}
	m.bookingFailures.WithLabelValues(label(mode)).Inc()
}

func (m *SettlementMetrics) CommissionRecorded() {
	if m == nil || m.commissionsRecorded == nil {
		return
	}
	m.commissionsRecorded.Inc()
}

func (m *SettlementMetrics) WebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(label(eventType), label(outcome)).Inc()
}

func (m *SettlementMetrics) NotificationDispatched(audience, outcome string) {
	if m == nil || m.notificationsHandled == nil {
		return
	}
	m.notificationsHandled.WithLabelValues(label(audience), label(outcome)).Inc()
}

func label(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
