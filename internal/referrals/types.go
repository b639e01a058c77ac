package referrals

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/google/uuid"
)

// AttributionWindow is how long a recorded visit keeps attributing bookings to an establishment.
const AttributionWindow = 15 * 24 * time.Hour

// Subject identifies who is browsing: an authenticated user, an anonymous visitor session, or both.
type Subject struct {
	UserID    *uuid.UUID
	SessionID string
}

// Empty reports whether neither identity is present.
func (s Subject) Empty() bool {
	return !s.hasUser() && s.session() == ""
}

func (s Subject) hasUser() bool {
	return s.UserID != nil && *s.UserID != uuid.Nil
}

func (s Subject) session() string {
	return strings.TrimSpace(s.SessionID)
}

// Link is the API view of an establishment referral link.
type Link struct {
	ID              uuid.UUID       `json:"id"`
	EstablishmentID uuid.UUID       `json:"establishmentId"`
	UserID          *uuid.UUID      `json:"userId,omitempty"`
	SessionID       *string         `json:"sessionId,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	ExpiresAt       time.Time       `json:"expiresAt"`
}

func linkFromModel(m *models.EstablishmentReferralLink) *Link {
	if m == nil {
		return nil
	}
	link := &Link{
		ID:              m.ID,
		EstablishmentID: m.EstablishmentID,
		UserID:          m.UserID,
		SessionID:       m.SessionID,
		CreatedAt:       m.CreatedAt,
		ExpiresAt:       m.ExpiresAt,
	}
	if len(m.Metadata) > 0 {
		link.Metadata = json.RawMessage(m.Metadata)
	}
	return link
}
