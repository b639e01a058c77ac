package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/activityhub-backend/internal/bookings"
	"github.com/angelmondragon/activityhub-backend/internal/checkout"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
	"github.com/angelmondragon/activityhub-backend/pkg/metrics"
)

type fakeMaterializer struct {
	calls     []bookings.CompletedSession
	err       error
	duplicate bool
}

func (f *fakeMaterializer) Materialize(_ context.Context, session bookings.CompletedSession) (*bookings.Result, error) {
	f.calls = append(f.calls, session)
	if f.err != nil {
		return nil, f.err
	}
	if f.duplicate {
		return &bookings.Result{Skipped: 1}, nil
	}
	return &bookings.Result{Created: []models.Booking{{ID: uuid.New()}}}, nil
}

func newTestService(t *testing.T, m *fakeMaterializer) (*Service, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	svc, err := NewService(ServiceParams{
		Materializer: m,
		Metrics:      metrics.NewSettlementMetrics(reg),
		Logger:       logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc, reg
}

func singleMetadata(t *testing.T) map[string]string {
	t.Helper()
	raw, err := checkout.EncodeMetadata(checkout.SingleCheckoutMetadata{
		ActivityID:   uuid.New(),
		Participants: 2,
		UnitPrice:    decimal.NewFromInt(50),
		Contact:      checkout.CustomerSnapshot{Name: "Ana", Email: "ana@example.com"},
	})
	if err != nil {
		t.Fatalf("encode metadata: %v", err)
	}
	return raw
}

func sessionEvent(t *testing.T, eventType stripe.EventType, paymentStatus string, metadata map[string]string) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":             "cs_test_1",
		"object":         "checkout.session",
		"amount_total":   10000,
		"currency":       "eur",
		"payment_status": paymentStatus,
		"metadata":       metadata,
		"customer_details": map[string]any{
			"email": "ana@example.com",
			"name":  "Ana Lopez",
		},
	})
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return &stripe.Event{ID: "evt_1", Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func webhookCount(t *testing.T, reg *prometheus.Registry, eventType, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "webhook_events_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			if hasLabel(metric, "type", eventType) && hasLabel(metric, "outcome", outcome) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name && pair.GetValue() == value {
			return true
		}
	}
	return false
}

func TestHandleCompletedSessionMaterializesBookings(t *testing.T) {
	m := &fakeMaterializer{}
	svc, reg := newTestService(t, m)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "paid", singleMetadata(t))
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(m.calls) != 1 {
		t.Fatalf("expected one materialization, got %d", len(m.calls))
	}
	call := m.calls[0]
	if call.ID != "cs_test_1" || call.EventID != "evt_1" || call.AmountTotal != 10000 || call.Currency != "eur" {
		t.Fatalf("unexpected session passed: %+v", call)
	}
	if call.CustomerName != "Ana Lopez" {
		t.Fatalf("expected customer details name, got %q", call.CustomerName)
	}
	single, ok := call.Metadata.(checkout.SingleCheckoutMetadata)
	if !ok {
		t.Fatalf("expected single metadata, got %T", call.Metadata)
	}
	if single.Participants != 2 {
		t.Fatalf("expected 2 participants, got %d", single.Participants)
	}
	if got := webhookCount(t, reg, "checkout.session.completed", metrics.OutcomeProcessed); got != 1 {
		t.Fatalf("expected processed counter 1, got %v", got)
	}
}

func TestHandleCompletedSessionAcknowledgesInvalidMetadata(t *testing.T) {
	m := &fakeMaterializer{}
	svc, reg := newTestService(t, m)

	event := sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "paid", map[string]string{"isCartCheckout": "maybe"})
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("invalid metadata should be acknowledged, got %v", err)
	}
	if len(m.calls) != 0 {
		t.Fatal("materializer should not run for invalid metadata")
	}
	if got := webhookCount(t, reg, "checkout.session.completed", metrics.OutcomeInvalidMetadata); got != 1 {
		t.Fatalf("expected invalid_metadata counter 1, got %v", got)
	}
}

func TestHandleCompletedSessionWaitsForAsyncPayment(t *testing.T) {
	m := &fakeMaterializer{}
	svc, _ := newTestService(t, m)

	if err := svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "unpaid", singleMetadata(t))); err != nil {
		t.Fatalf("handle unpaid: %v", err)
	}
	if len(m.calls) != 0 {
		t.Fatal("unpaid session should not be materialized")
	}

	if err := svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded, "paid", singleMetadata(t))); err != nil {
		t.Fatalf("handle async success: %v", err)
	}
	if len(m.calls) != 1 {
		t.Fatalf("expected async success to materialize, got %d calls", len(m.calls))
	}
}

func TestHandleCompletedSessionSurfacesFailures(t *testing.T) {
	m := &fakeMaterializer{err: errors.New("db down")}
	svc, reg := newTestService(t, m)

	err := svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "paid", singleMetadata(t)))
	if err == nil {
		t.Fatal("expected materializer failure to be returned")
	}
	if got := webhookCount(t, reg, "checkout.session.completed", metrics.OutcomeFailed); got != 1 {
		t.Fatalf("expected failed counter 1, got %v", got)
	}
}

func TestHandleCompletedSessionCountsRedelivery(t *testing.T) {
	m := &fakeMaterializer{duplicate: true}
	svc, reg := newTestService(t, m)

	if err := svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, "paid", singleMetadata(t))); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if got := webhookCount(t, reg, "checkout.session.completed", metrics.OutcomeDuplicate); got != 1 {
		t.Fatalf("expected duplicate counter 1, got %v", got)
	}
}

func TestHandleOtherEvents(t *testing.T) {
	m := &fakeMaterializer{}
	svc, reg := newTestService(t, m)

	pi := &stripe.Event{ID: "evt_pi", Type: stripe.EventTypePaymentIntentSucceeded, Data: &stripe.EventData{Raw: json.RawMessage(`{"id":"pi_1"}`)}}
	if err := svc.HandleEvent(context.Background(), pi); err != nil {
		t.Fatalf("payment intent: %v", err)
	}
	other := &stripe.Event{ID: "evt_other", Type: stripe.EventTypeCustomerCreated, Data: &stripe.EventData{Raw: json.RawMessage(`{}`)}}
	if err := svc.HandleEvent(context.Background(), other); err != nil {
		t.Fatalf("other event: %v", err)
	}
	if len(m.calls) != 0 {
		t.Fatal("no bookings expected for non-checkout events")
	}
	if got := webhookCount(t, reg, "customer.created", metrics.OutcomeIgnored); got != 1 {
		t.Fatalf("expected ignored counter 1, got %v", got)
	}
	if err := svc.HandleEvent(context.Background(), nil); err == nil {
		t.Fatal("expected nil event to be rejected")
	}
}
