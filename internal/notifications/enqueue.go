package notifications

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/activityhub-backend/pkg/errors"
	"github.com/angelmondragon/activityhub-backend/pkg/outbox"
	"github.com/angelmondragon/activityhub-backend/pkg/outbox/payloads"
)

// EnqueueInput describes a settled booking whose parties should be told about it.
type EnqueueInput struct {
	Booking              *models.Booking
	Mode                 enums.CheckoutMode
	HasPartnerCommission bool
	Actor                *outbox.ActorRef
}

// Enqueuer writes one notification_requested row per audience inside the settlement transaction.
type Enqueuer struct {
	outbox outbox.Emitter
}

func NewEnqueuer(emitter outbox.Emitter) (*Enqueuer, error) {
	if emitter == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "outbox emitter is required")
	}
	return &Enqueuer{outbox: emitter}, nil
}

// DedupeKey is the outbox key that keeps a booking from notifying the same audience twice.
func DedupeKey(booking *models.Booking, audience enums.NotificationAudience) string {
	return fmt.Sprintf("notification:%s:%s", booking.ID, audience)
}

// Audiences lists who is notified for a booking.
func Audiences(hasPartnerCommission bool) []enums.NotificationAudience {
	out := []enums.NotificationAudience{enums.NotificationAudienceCustomer, enums.NotificationAudienceProvider}
	if hasPartnerCommission {
		out = append(out, enums.NotificationAudiencePartner)
	}
	return out
}

func (e *Enqueuer) Enqueue(ctx context.Context, tx *gorm.DB, in EnqueueInput) error {
	if in.Booking == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "booking is required")
	}
	for _, audience := range Audiences(in.HasPartnerCommission) {
		err := e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateBooking,
			AggregateID:   in.Booking.ID,
			Actor:         in.Actor,
			Data: payloads.NotificationRequestedEvent{
				BookingID: in.Booking.ID,
				Audience:  audience,
				Mode:      in.Mode,
			},
			DedupeKey: DedupeKey(in.Booking, audience),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeNotification, err, "enqueue booking notification")
		}
	}
	return nil
}
