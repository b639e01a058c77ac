package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/activityhub-backend/api/responses"
	"github.com/angelmondragon/activityhub-backend/api/validators"
	"github.com/angelmondragon/activityhub-backend/internal/bookings"
	"github.com/angelmondragon/activityhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/activityhub-backend/pkg/errors"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
)

type bookingDetailResolver interface {
	Resolve(ctx context.Context, sessionID string, mode enums.CheckoutMode) (*bookings.Detail, error)
}

// BookingDetail backs the post-payment confirmation page. Before the webhook lands the
// response carries processing placeholders rather than a 404.
func BookingDetail(resolver bookingDetailResolver, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if resolver == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking resolver unavailable"))
			return
		}

		sessionID, err := validators.RequireQueryString(r, "sessionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rawMode, err := validators.ParseQueryEnum(r, "type", string(enums.CheckoutModeSingle), string(enums.CheckoutModeSingle), string(enums.CheckoutModeCart))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithSessionID(ctx, sessionID)
		}
		detail, err := resolver.Resolve(ctx, sessionID, enums.CheckoutMode(rawMode))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}
