package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/activityhub-backend/internal/bookings"
	"github.com/angelmondragon/activityhub-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/activityhub-backend/pkg/errors"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
	"github.com/angelmondragon/activityhub-backend/pkg/metrics"
)

type materializer interface {
	Materialize(ctx context.Context, session bookings.CompletedSession) (*bookings.Result, error)
}

type ServiceParams struct {
	Materializer materializer
	Metrics      *metrics.SettlementMetrics
	Logger       *logger.Logger
}

// Service routes verified Stripe events to the booking pipeline.
type Service struct {
	materializer materializer
	metrics      *metrics.SettlementMetrics
	logg         *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Materializer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "booking materializer required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		materializer: params.Materializer,
		metrics:      params.Metrics,
		logg:         params.Logger,
	}, nil
}

// HandleEvent returns nil for events that need no retry, including ones carrying metadata
// that can never be parsed. Any returned error should make the processor redeliver.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	eventType := string(event.Type)
	ctx = s.logg.WithField(s.logg.WithEventID(ctx, event.ID), "stripe_event_type", eventType)

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			s.metrics.WebhookEvent(eventType, metrics.OutcomeInvalidMetadata)
			s.logg.Error(ctx, "decode checkout session", err)
			return nil
		}
		return s.handleCompletedSession(ctx, event, &session)
	case stripe.EventTypePaymentIntentSucceeded:
		s.logg.Info(ctx, "payment intent succeeded")
		s.metrics.WebhookEvent(eventType, metrics.OutcomeProcessed)
		return nil
	default:
		s.metrics.WebhookEvent(eventType, metrics.OutcomeIgnored)
		return nil
	}
}

func (s *Service) handleCompletedSession(ctx context.Context, event *stripe.Event, session *stripe.CheckoutSession) error {
	eventType := string(event.Type)
	ctx = s.logg.WithSessionID(ctx, session.ID)

	// Delayed payment methods complete the session unpaid and follow up with
	// checkout.session.async_payment_succeeded.
	if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		s.logg.Info(ctx, "checkout session completed without payment; waiting for async confirmation")
		s.metrics.WebhookEvent(eventType, metrics.OutcomeIgnored)
		return nil
	}

	meta, err := checkout.ParseMetadata(session.Metadata)
	if err != nil {
		s.logg.Error(ctx, "checkout session metadata rejected", err)
		s.metrics.WebhookEvent(eventType, metrics.OutcomeInvalidMetadata)
		return nil
	}

	completed := bookings.CompletedSession{
		ID:          session.ID,
		EventID:     event.ID,
		AmountTotal: session.AmountTotal,
		Currency:    string(session.Currency),
		Metadata:    meta,
	}
	if session.CustomerDetails != nil {
		completed.CustomerEmail = session.CustomerDetails.Email
		completed.CustomerName = session.CustomerDetails.Name
	}
	if completed.CustomerEmail == "" {
		completed.CustomerEmail = session.CustomerEmail
	}

	result, err := s.materializer.Materialize(ctx, completed)
	if err != nil {
		s.metrics.WebhookEvent(eventType, metrics.OutcomeFailed)
		return err
	}

	outcome := metrics.OutcomeProcessed
	if len(result.Created) == 0 && result.Skipped > 0 {
		outcome = metrics.OutcomeDuplicate
	}
	s.metrics.WebhookEvent(eventType, outcome)
	s.logg.Info(ctx, fmt.Sprintf("checkout session settled: %d created, %d already present", len(result.Created), result.Skipped))
	return nil
}
