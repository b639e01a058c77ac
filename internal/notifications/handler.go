package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/activityhub-backend/internal/catalog"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/email"
	pkgerrors "github.com/angelmondragon/activityhub-backend/pkg/errors"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
	"github.com/angelmondragon/activityhub-backend/pkg/metrics"
	"github.com/angelmondragon/activityhub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/activityhub-backend/pkg/outbox/registry"
)

// DeliveryConsumer scopes the idempotency claims taken by the email delivery handler.
const DeliveryConsumer = "booking-notifications"

type claimer interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type DeliveryParams struct {
	Repo        *Repository
	Catalog     *catalog.Repository
	Sender      email.Sender
	Templates   *Templates
	Idempotency claimer
	Metrics     *metrics.SettlementMetrics
	Logger      *logger.Logger
}

// Delivery turns notification_requested outbox rows into emails.
type Delivery struct {
	composer composer
	repo     *Repository
	sender   email.Sender
	claims   claimer
	metrics  *metrics.SettlementMetrics
	logg     *logger.Logger
}

func NewDelivery(params DeliveryParams) (*Delivery, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification repository is required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog repository is required")
	}
	if params.Sender == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email sender is required")
	}
	if params.Templates == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification templates are required")
	}
	if params.Idempotency == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency manager is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	return &Delivery{
		composer: composer{repo: params.Repo, catalog: params.Catalog, templates: params.Templates},
		repo:     params.Repo,
		sender:   params.Sender,
		claims:   params.Idempotency,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// Handle delivers one resolved notification row. Returning nil marks the row published;
// a registry.NonRetryableError sends it to the DLQ; any other error schedules a retry.
func (d *Delivery) Handle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	if resolved == nil {
		return registry.NewNonRetryableError(errors.New("notification event not resolved"))
	}
	payload, ok := resolved.Payload.(*payloads.NotificationRequestedEvent)
	if !ok || payload == nil {
		return registry.NewNonRetryableError(fmt.Errorf("unexpected payload %T for notification", resolved.Payload))
	}
	audience := string(payload.Audience)

	logCtx := d.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID.String(),
		"booking_id": payload.BookingID.String(),
		"audience":   audience,
	})

	if !payload.Audience.IsValid() {
		d.metrics.NotificationDispatched(audience, metrics.OutcomeFailed)
		return registry.NewNonRetryableError(fmt.Errorf("unknown audience %q", payload.Audience))
	}

	booking, err := d.repo.WithTx(tx).FindBooking(ctx, payload.BookingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			d.metrics.NotificationDispatched(audience, metrics.OutcomeFailed)
			return registry.NewNonRetryableError(fmt.Errorf("booking %s not found", payload.BookingID))
		}
		return err
	}

	msg, err := d.composer.compose(ctx, tx, booking, payload.Audience)
	if err != nil {
		if errors.Is(err, errNoRecipient) {
			d.logg.Warn(logCtx, "notification has no recipient; skipping")
			d.metrics.NotificationDispatched(audience, metrics.OutcomeSkipped)
			return nil
		}
		return err
	}

	claimed, err := d.claims.Claim(ctx, DeliveryConsumer, event.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim notification delivery")
	}
	if !claimed {
		d.logg.Info(logCtx, "notification already delivered")
		d.metrics.NotificationDispatched(audience, metrics.OutcomeDuplicate)
		return nil
	}

	msg.Tags["event_id"] = event.ID.String()
	if err := d.sender.Send(ctx, *msg); err != nil {
		if releaseErr := d.claims.Release(ctx, DeliveryConsumer, event.ID); releaseErr != nil {
			d.logg.Error(logCtx, "failed to release notification claim", releaseErr)
		}
		d.metrics.NotificationDispatched(audience, metrics.OutcomeFailed)
		wrapped := pkgerrors.Wrap(pkgerrors.CodeNotification, err, "send booking notification")
		if email.IsPermanent(err) {
			return registry.NewNonRetryableError(wrapped)
		}
		return wrapped
	}

	d.logg.Info(logCtx, "notification sent")
	d.metrics.NotificationDispatched(audience, metrics.OutcomeSent)
	return nil
}
