package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/activityhub-backend/api/middleware"
	"github.com/angelmondragon/activityhub-backend/api/responses"
	"github.com/angelmondragon/activityhub-backend/api/validators"
	"github.com/angelmondragon/activityhub-backend/internal/referrals"
	pkgerrors "github.com/angelmondragon/activityhub-backend/pkg/errors"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
)

type referralTracker interface {
	GetActiveLink(ctx context.Context, subject referrals.Subject) (*referrals.Link, error)
	RecordVisit(ctx context.Context, establishmentID uuid.UUID, subject referrals.Subject, metadata map[string]any) (*referrals.Link, error)
}

type referralVisitRequest struct {
	EstablishmentID uuid.UUID      `json:"establishmentId" validate:"required"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// ReferralVisit records that the caller arrived through an establishment's link.
func ReferralVisit(svc referralTracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "referral service unavailable"))
			return
		}

		var payload referralVisitRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		link, err := svc.RecordVisit(r.Context(), payload.EstablishmentID, middleware.SubjectFromContext(r.Context()), payload.Metadata)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, link)
	}
}

// ReferralActive returns the caller's active link, or null when there is none.
func ReferralActive(svc referralTracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "referral service unavailable"))
			return
		}

		link, err := svc.GetActiveLink(r.Context(), middleware.SubjectFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if link == nil {
			responses.WriteSuccess(w, nil)
			return
		}
		responses.WriteSuccess(w, link)
	}
}
