package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/activityhub-backend/pkg/db"
	"github.com/angelmondragon/activityhub-backend/pkg/db/models"
	"github.com/angelmondragon/activityhub-backend/pkg/enums"
	"github.com/angelmondragon/activityhub-backend/pkg/logger"
)

const dedupeConstraint = "ux_outbox_events_dedupe_key"

// ErrInvalidEvent is returned for events whose type or aggregate the outbox
// tables cannot store.
var ErrInvalidEvent = errors.New("invalid outbox event")

type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
	// DedupeKey, when set, makes the emit a no-op if a row with the same key exists.
	DedupeKey string
}

func (e DomainEvent) validate() error {
	switch {
	case !e.EventType.IsValid():
		return fmt.Errorf("%w: event type %q", ErrInvalidEvent, e.EventType)
	case !e.AggregateType.IsValid():
		return fmt.Errorf("%w: aggregate type %q", ErrInvalidEvent, e.AggregateType)
	case e.AggregateID == uuid.Nil:
		return fmt.Errorf("%w: aggregate id required", ErrInvalidEvent)
	}
	return nil
}

// Emitter writes domain events into the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit appends the event to outbox_events inside tx. A DedupeKey already on
// file turns the call into a silent no-op, including when a concurrent
// transaction wins the insert race.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := event.validate(); err != nil {
		return err
	}

	dedupe := strings.TrimSpace(event.DedupeKey)
	if dedupe != "" {
		exists, err := s.repo.ExistsByDedupeKeyTx(tx, dedupe)
		if err != nil || exists {
			return err
		}
	}

	row, envelope, err := s.buildRow(event, dedupe)
	if err != nil {
		return err
	}
	inserted, err := s.insert(tx, row)
	if err != nil || !inserted {
		return err
	}

	if s.logg != nil {
		fields := map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_id":   event.AggregateID.String(),
			"aggregate_type": event.AggregateType,
		}
		if dedupe != "" {
			fields["dedupe_key"] = dedupe
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event queued")
	}
	return nil
}

func (s *Service) buildRow(event DomainEvent, dedupe string) (models.OutboxEvent, PayloadEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	envelope := PayloadEnvelope{
		Version:    max(event.Version, 1),
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = s.now().UTC()
	}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("encode envelope: %w", err)
	}

	row := models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       encoded,
	}
	if dedupe != "" {
		row.DedupeKey = &dedupe
	}
	return row, envelope, nil
}

// insert reports false when a deduplicated row lost the race on the unique
// key. Those inserts run in a savepoint so the caller's tx stays usable.
func (s *Service) insert(tx *gorm.DB, row models.OutboxEvent) (bool, error) {
	if row.DedupeKey == nil {
		return true, s.repo.Insert(tx, row)
	}
	err := tx.Transaction(func(inner *gorm.DB) error {
		return s.repo.Insert(inner, row)
	})
	switch {
	case err == nil:
		return true, nil
	case dbpkg.IsUniqueViolation(err, dedupeConstraint):
		return false, nil
	}
	return false, err
}
