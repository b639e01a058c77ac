package webhooks

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/activityhub-backend/api/responses"
	pkgerrors "github.com/angelmondragon/activityhub-backend/pkg/errors"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
	"github.com/angelmondragon/activityhub-backend/pkg/metrics"
)

const maxWebhookBodyBytes = 1 << 20

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type stripeWebhookGuard interface {
	Processed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
	FirstSeen(ctx context.Context, eventID string) (time.Time, error)
}

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhook verifies and dispatches Stripe checkout events. Signature failures are
// rejected with 400 before anything is recorded. An event id is marked only once its handler
// succeeded, so failed or interrupted deliveries are processed again on Stripe's retry.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard stripeWebhookGuard, m *metrics.SettlementMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			m.WebhookEvent("", metrics.OutcomeUntrusted)
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUntrustedEvent, "stripe signature missing"))
			return
		}

		// only checkout session fields are read, so an account pinned to another
		// API version still verifies
		event, err := webhook.ConstructEventWithOptions(payload, sigHeader, client.SigningSecret(), webhook.ConstructEventOptions{
			Tolerance:                webhook.DefaultTolerance,
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			m.WebhookEvent("", metrics.OutcomeUntrusted)
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUntrustedEvent, err, "verify signature"))
			return
		}

		if logg != nil {
			ctx = logg.WithEventID(ctx, event.ID)
			ctx = logg.WithField(ctx, "stripe_event_type", string(event.Type))
		}

		alreadyProcessed, err := guard.Processed(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			m.WebhookEvent(string(event.Type), metrics.OutcomeDuplicate)
			if logg != nil {
				if seen, _ := guard.FirstSeen(ctx, event.ID); !seen.IsZero() {
					ctx = logg.WithField(ctx, "first_seen", seen.Format(time.RFC3339))
				}
				logg.Info(ctx, "stripe.webhook.duplicate")
			}
			responses.WriteSuccess(w, map[string]bool{"received": true})
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if logg != nil {
				ctx = logg.WithField(ctx, "retryable", pkgerrors.IsRetryable(err))
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		// settlement already committed; a dropped caller must not skip the mark
		if err := guard.MarkProcessed(context.WithoutCancel(ctx), event.ID); err != nil && logg != nil {
			logg.Error(ctx, "stripe.webhook.mark_failed", err)
		}

		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
