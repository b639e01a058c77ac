package referrals

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/angelmondragon/activityhub-backend/internal/catalog"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/activityhub-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ServiceParams groups dependencies for the referral tracker.
type ServiceParams struct {
	Repo    *Repository
	Catalog *catalog.Repository
	Now     func() time.Time
}

// Service tracks which establishment referred a browsing user or visitor session.
type Service interface {
	GetActiveLink(ctx context.Context, subject Subject) (*Link, error)
	GetActiveLinkWithTx(ctx context.Context, tx *gorm.DB, subject Subject) (*Link, error)
	RecordVisit(ctx context.Context, establishmentID uuid.UUID, subject Subject, metadata map[string]any) (*Link, error)
	GetLink(ctx context.Context, id uuid.UUID) (*Link, error)
	GetLinkWithTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Link, error)
	PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error)
}

type service struct {
	repo    *Repository
	catalog *catalog.Repository
	now     func() time.Time
}

// NewService builds the referral tracker.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "referral repo is required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "catalog repo is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{repo: params.Repo, catalog: params.Catalog, now: now}, nil
}

// GetActiveLink resolves the user first and falls back to the visitor session. Returns nil when
// neither has a link inside the attribution window.
func (s *service) GetActiveLink(ctx context.Context, subject Subject) (*Link, error) {
	return s.activeLink(ctx, s.repo, subject)
}

func (s *service) GetActiveLinkWithTx(ctx context.Context, tx *gorm.DB, subject Subject) (*Link, error) {
	return s.activeLink(ctx, s.repo.WithTx(tx), subject)
}

func (s *service) activeLink(ctx context.Context, repo *Repository, subject Subject) (*Link, error) {
	if subject.Empty() {
		return nil, nil
	}
	now := s.now().UTC()

	if subject.hasUser() {
		link, err := repo.FindActiveByUser(ctx, *subject.UserID, now)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load referral link for user")
		}
		if link != nil {
			return linkFromModel(link), nil
		}
	}

	if sessionID := subject.session(); sessionID != "" {
		link, err := repo.FindActiveBySession(ctx, sessionID, now)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load referral link for session")
		}
		return linkFromModel(link), nil
	}
	return nil, nil
}

// RecordVisit starts a new attribution window for the subject. Earlier links are left untouched;
// the newest one wins at read time.
func (s *service) RecordVisit(ctx context.Context, establishmentID uuid.UUID, subject Subject, metadata map[string]any) (*Link, error) {
	if establishmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "establishment id is required")
	}
	if subject.Empty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a user or visitor session is required")
	}

	establishment, err := s.catalog.FindEstablishment(ctx, establishmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "establishment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load establishment")
	}
	if !establishment.Active {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "establishment not found")
	}

	now := s.now().UTC()
	row := &models.EstablishmentReferralLink{
		EstablishmentID: establishmentID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(AttributionWindow),
	}
	if subject.hasUser() {
		userID := *subject.UserID
		row.UserID = &userID
	}
	if sessionID := subject.session(); sessionID != "" {
		row.SessionID = &sessionID
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "metadata must be a JSON object")
		}
		row.Metadata = datatypes.JSON(raw)
	}

	if err := s.repo.Create(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record referral visit")
	}
	return linkFromModel(row), nil
}

// GetLink loads a link by id whether or not it has expired. Returns nil when it no longer exists.
func (s *service) GetLink(ctx context.Context, id uuid.UUID) (*Link, error) {
	return s.link(ctx, s.repo, id)
}

func (s *service) GetLinkWithTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Link, error) {
	return s.link(ctx, s.repo.WithTx(tx), id)
}

func (s *service) link(ctx context.Context, repo *Repository, id uuid.UUID) (*Link, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	row, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load referral link")
	}
	return linkFromModel(row), nil
}

// PurgeExpired deletes links that expired more than olderThan ago.
func (s *service) PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "purge age must not be negative")
	}
	cutoff := s.now().UTC().Add(-olderThan)
	deleted, err := s.repo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge expired referral links")
	}
	return deleted, nil
}
