package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/activityhub-backend/api/middleware"
	"github.com/angelmondragon/activityhub-backend/api/responses"
	"github.com/angelmondragon/activityhub-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/activityhub-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/activityhub-backend/pkg/errors"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
)

// CheckoutCreateSession builds a hosted payment session for a single activity or a cart.
func CheckoutCreateSession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		session, err := svc.CreateSession(r.Context(), payload.toRequest(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutSessionResponse{
			URL:       session.URL,
			SessionID: session.ID,
		})
	}
}

type checkoutSessionRequest struct {
	ActivityID      *uuid.UUID         `json:"activityId,omitempty"`
	ScheduleID      *uuid.UUID         `json:"scheduleId,omitempty"`
	Participants    int                `json:"participants,omitempty" validate:"omitempty,min=1,max=100"`
	UnitPrice       *decimal.Decimal   `json:"unitPrice,omitempty"`
	CartItems       []checkoutCartItem `json:"cartItems,omitempty" validate:"omitempty,max=50,dive"`
	Currency        string             `json:"currency,omitempty" validate:"omitempty,currency"`
	CustomerEmail   string             `json:"customerEmail" validate:"required,email"`
	CustomerName    string             `json:"customerName,omitempty" validate:"omitempty,max=200"`
	EstablishmentID *uuid.UUID         `json:"establishmentId,omitempty"`
	SuccessURL      string             `json:"successUrl" validate:"required,url"`
	CancelURL       string             `json:"cancelUrl" validate:"required,url"`
}

type checkoutCartItem struct {
	ActivityID uuid.UUID        `json:"activityId" validate:"required"`
	ScheduleID *uuid.UUID       `json:"scheduleId,omitempty"`
	Quantity   int              `json:"quantity" validate:"required,min=1,max=100"`
	UnitPrice  *decimal.Decimal `json:"unitPrice,omitempty"`
}

type checkoutSessionResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
}

func (p checkoutSessionRequest) toRequest(r *http.Request) checkoutsvc.Request {
	subject := middleware.SubjectFromContext(r.Context())
	req := checkoutsvc.Request{
		ActivityID:       p.ActivityID,
		ScheduleID:       p.ScheduleID,
		Participants:     p.Participants,
		UnitPrice:        decimalOrZero(p.UnitPrice),
		Currency:         p.Currency,
		CustomerEmail:    validators.SanitizeString(p.CustomerEmail, 320),
		CustomerName:     validators.SanitizeString(p.CustomerName, 200),
		CustomerID:       subject.UserID,
		VisitorSessionID: subject.SessionID,
		EstablishmentID:  p.EstablishmentID,
		SuccessURL:       p.SuccessURL,
		CancelURL:        p.CancelURL,
	}
	if req.ActivityID != nil && req.Participants == 0 {
		req.Participants = 1
	}
	for _, item := range p.CartItems {
		req.Items = append(req.Items, checkoutsvc.ItemRequest{
			ActivityID: item.ActivityID,
			ScheduleID: item.ScheduleID,
			Quantity:   item.Quantity,
			UnitPrice:  decimalOrZero(item.UnitPrice),
		})
	}
	return req
}

func decimalOrZero(v *decimal.Decimal) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return *v
}
