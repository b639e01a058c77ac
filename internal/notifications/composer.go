package notifications

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/activityhub-backend/internal/catalog"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/email"
	"github.com/angelmondragon/activityhub-backend/pkg/enums"
	"github.com/angelmondragon/activityhub-backend/pkg/money"
	"github.com/angelmondragon/activityhub-backend/pkg/outbox/registry"
)

// errNoRecipient means the audience has nobody to write to; the request is dropped.
var errNoRecipient = errors.New("no recipient for audience")

type recipient struct {
	email string
	name  string
}

type composer struct {
	repo      *Repository
	catalog   *catalog.Repository
	templates *Templates
}

// compose loads the booking's current state and renders the message for one audience.
func (c composer) compose(ctx context.Context, tx *gorm.DB, booking *models.Booking, audience enums.NotificationAudience) (*email.Message, error) {
	catalogRepo := c.catalog.WithTx(tx)

	activity, err := catalogRepo.FindActivity(ctx, booking.ActivityID)
	if err != nil {
		return nil, err
	}

	view := BookingView{
		BookingID:               booking.ID.String(),
		ActivityTitle:           activity.Title,
		CustomerName:            booking.CustomerName,
		CustomerEmail:           booking.CustomerEmail,
		Participants:            booking.Participants,
		BookingDate:             booking.BookingDate.UTC().Format("Mon 2 Jan 2006"),
		Total:                   formatAmount(booking.TotalAmount, booking.Currency),
		PlatformFee:             formatAmount(booking.PlatformFee, booking.Currency),
		ProviderAmount:          formatAmount(booking.ProviderAmount, booking.Currency),
		EstablishmentCommission: formatAmount(booking.ReferralCommission, booking.Currency),
	}

	var to recipient
	switch audience {
	case enums.NotificationAudienceCustomer:
		to = recipient{email: booking.CustomerEmail, name: booking.CustomerName}
	case enums.NotificationAudienceProvider:
		ownerID := activity.OwnerID
		if booking.ProviderID != nil {
			ownerID = *booking.ProviderID
		}
		owner, err := catalogRepo.FindOwner(ctx, ownerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errNoRecipient
			}
			return nil, err
		}
		view.ProviderName = firstNonEmpty(owner.ContactName, owner.BusinessName)
		if view.Invoice, err = c.repo.WithTx(tx).FindInvoiceNumber(ctx, booking.ID); err != nil {
			return nil, err
		}
		to = recipient{email: owner.Email, name: view.ProviderName}
	case enums.NotificationAudiencePartner:
		if booking.EstablishmentID == nil {
			return nil, errNoRecipient
		}
		est, err := catalogRepo.FindEstablishment(ctx, *booking.EstablishmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errNoRecipient
			}
			return nil, err
		}
		view.EstablishmentName = est.Name
		contact, err := catalogRepo.FindPartnerContact(ctx, est.ID)
		if err != nil {
			return nil, err
		}
		to = recipient{email: est.Email, name: est.Name}
		if contact != nil {
			to = recipient{email: contact.ContactEmail, name: firstNonEmpty(contact.ContactName, est.Name)}
		}
		view.PartnerName = to.name
	default:
		return nil, errNoRecipient
	}

	if strings.TrimSpace(to.email) == "" {
		return nil, errNoRecipient
	}

	subject, text, html, err := c.templates.Render(audience, view)
	if err != nil {
		return nil, registry.NewNonRetryableError(err)
	}
	return &email.Message{
		ToEmail:   to.email,
		ToName:    to.name,
		Subject:   subject,
		PlainText: text,
		HTML:      html,
		Tags: map[string]string{
			"booking_id": booking.ID.String(),
			"audience":   string(audience),
		},
	}, nil
}

func formatAmount(amount decimal.Decimal, currency string) string {
	return money.String(amount) + " " + strings.ToUpper(currency)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
