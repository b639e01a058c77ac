package commissions

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/activityhub-backend/internal/catalog"
	"github.com/angelmondragon/activityhub-backend/internal/checkout"
	"github.com/angelmondragon/activityhub-backend/internal/referrals"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/activityhub-backend/pkg/errors"
	"github.com/angelmondragon/activityhub-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceDueAfter is the payment term of a commission invoice.
const InvoiceDueAfter = 30 * 24 * time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the commission calculator.
type ServiceParams struct {
	Tx        txRunner
	Repo      *Repository
	Catalog   *catalog.Repository
	Referrals referrals.Service
	Metrics   *metrics.SettlementMetrics
	Now       func() time.Time
}

// Settlement is the outcome of settling one booking.
type Settlement struct {
	Breakdown
	EstablishmentID *uuid.UUID
	ReferralLinkID  *uuid.UUID
	InvoiceNumber   string
}

// Service settles bookings: fee split on the booking, commission record, and commission invoice.
type Service interface {
	Settle(ctx context.Context, tx *gorm.DB, booking *models.Booking, subject referrals.Subject, snapshot checkout.AttributionSnapshot) (*Settlement, error)
	Resettle(ctx context.Context, bookingID uuid.UUID) (*Settlement, error)
}

type service struct {
	tx        txRunner
	repo      *Repository
	catalog   *catalog.Repository
	referrals referrals.Service
	metrics   *metrics.SettlementMetrics
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tx runner is required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission repo is required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog repo is required")
	}
	if params.Referrals == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "referral service is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:        params.Tx,
		repo:      params.Repo,
		catalog:   params.Catalog,
		referrals: params.Referrals,
		metrics:   params.Metrics,
		now:       now,
	}, nil
}

// Settle runs inside the caller's transaction. Re-running it for a settled booking
// rewrites the same rows.
func (s *service) Settle(ctx context.Context, tx *gorm.DB, booking *models.Booking, subject referrals.Subject, snapshot checkout.AttributionSnapshot) (*Settlement, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction is required")
	}
	if booking == nil || booking.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking is required")
	}
	repo := s.repo.WithTx(tx)

	if booking.ProviderID == nil {
		activity, err := s.catalog.WithTx(tx).FindActivity(ctx, booking.ActivityID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "resolve booking provider")
		}
		ownerID := activity.OwnerID
		booking.ProviderID = &ownerID
	}

	attr, err := s.attribute(ctx, tx, booking.ID, subject, snapshot)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	breakdown := Calculate(booking.TotalAmount, attr != nil)
	result := &Settlement{Breakdown: breakdown}
	if attr != nil {
		establishmentID := attr.establishmentID
		result.EstablishmentID = &establishmentID
		result.ReferralLinkID = attr.linkID
	}

	if err := repo.ApplyBreakdown(ctx, booking, breakdown, result.EstablishmentID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update booking fees")
	}

	if attr != nil {
		commission := &models.EstablishmentCommission{
			EstablishmentID:  attr.establishmentID,
			BookingID:        booking.ID,
			ActivityID:       booking.ActivityID,
			CustomerID:       booking.CustomerID,
			BookingAmount:    breakdown.Total,
			CommissionRate:   NominalCommissionRate,
			CommissionAmount: breakdown.EstablishmentCommission,
			Status:           enums.CommissionStatusPending,
			ReferralLinkID:   result.ReferralLinkID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := repo.UpsertCommission(ctx, commission); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "record establishment commission")
		}
		s.metrics.CommissionRecorded()
	}

	invoice := &models.CommissionInvoice{
		BookingID:                booking.ID,
		ProviderID:               *booking.ProviderID,
		InvoiceNumber:            InvoiceNumber(booking.ID, now),
		TotalBookingAmount:       breakdown.Total,
		PlatformCommissionRate:   PlatformRate,
		PlatformCommissionAmount: breakdown.PlatformFeeGross,
		IssueDate:                now,
		DueDate:                  now.Add(InvoiceDueAfter),
		Status:                   enums.CommissionStatusPending,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if attr != nil {
		invoice.PartnerCommissionRate = decimal.NewNullDecimal(NominalCommissionRate)
		invoice.PartnerCommissionAmount = decimal.NewNullDecimal(breakdown.EstablishmentCommission)
	}
	if err := repo.UpsertInvoice(ctx, invoice); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "write commission invoice")
	}

	stored, err := repo.FindInvoiceByBooking(ctx, booking.ID)
	if err != nil || stored == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "reload commission invoice")
	}
	result.InvoiceNumber = stored.InvoiceNumber
	return result, nil
}

// Resettle recomputes a persisted booking in its own transaction.
func (s *service) Resettle(ctx context.Context, bookingID uuid.UUID) (*Settlement, error) {
	if bookingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking id is required")
	}
	var result *Settlement
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		booking, err := repo.FindBooking(ctx, bookingID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "booking not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
		}
		if booking.Status != enums.BookingStatusConfirmed {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "booking is %s", booking.Status)
		}

		snapshot := checkout.AttributionSnapshot{}
		existing, err := repo.FindCommissionByBooking(ctx, booking.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission")
		}
		if existing != nil {
			establishmentID := existing.EstablishmentID
			snapshot = checkout.AttributionSnapshot{HasActiveLink: true, EstablishmentID: &establishmentID, LinkID: existing.ReferralLinkID}
		}

		result, err = s.Settle(ctx, tx, booking, referrals.Subject{UserID: booking.CustomerID}, snapshot)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type attribution struct {
	establishmentID uuid.UUID
	linkID          *uuid.UUID
}

// attribute pins a booking to the establishment of its recorded commission. Without
// one it resolves a referral link, so a booking and its commission row never disagree.
func (s *service) attribute(ctx context.Context, tx *gorm.DB, bookingID uuid.UUID, subject referrals.Subject, snapshot checkout.AttributionSnapshot) (*attribution, error) {
	existing, err := s.repo.WithTx(tx).FindCommissionByBooking(ctx, bookingID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "load commission")
	}
	if existing != nil {
		return &attribution{establishmentID: existing.EstablishmentID, linkID: existing.ReferralLinkID}, nil
	}

	link, err := s.resolveLink(ctx, tx, subject, snapshot)
	if err != nil || link == nil {
		return nil, err
	}
	linkID := link.ID
	return &attribution{establishmentID: link.EstablishmentID, linkID: &linkID}, nil
}

// resolveLink prefers the link captured on the checkout session while its row still
// exists, and otherwise asks the tracker for the subject's currently active link.
func (s *service) resolveLink(ctx context.Context, tx *gorm.DB, subject referrals.Subject, snapshot checkout.AttributionSnapshot) (*referrals.Link, error) {
	if snapshot.LinkID != nil {
		link, err := s.referrals.GetLinkWithTx(ctx, tx, *snapshot.LinkID)
		if err != nil {
			return nil, err
		}
		if link != nil {
			return link, nil
		}
	}
	return s.referrals.GetActiveLinkWithTx(ctx, tx, subject)
}

// InvoiceNumber formats INV-YYYYMMDD-<booking id hex> from the issue date and the
// full booking id, so two bookings never share a number.
func InvoiceNumber(bookingID uuid.UUID, issued time.Time) string {
	return fmt.Sprintf("INV-%s-%s", issued.UTC().Format("20060102"), strings.ToUpper(hex.EncodeToString(bookingID[:])))
}
