package stripewebhook

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/activityhub-backend/pkg/errors"
	"github.com/angelmondragon/activityhub-backend/pkg/redis"
)

// IdempotencyGuard remembers processed Stripe event ids so redeliveries are acknowledged
// without materializing bookings again. An id is recorded only after its event was handled;
// the stored value is the time it was marked.
type IdempotencyGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
	now   func() time.Time
}

func NewIdempotencyGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
		now:   time.Now,
	}, nil
}

// Processed reports whether the event id was already marked.
func (g *IdempotencyGuard) Processed(ctx context.Context, eventID string) (bool, error) {
	key, err := g.key(eventID)
	if err != nil {
		return false, err
	}
	raw, err := g.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		return false, nil
	case err != nil:
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook event")
	}
	return raw != "", nil
}

// MarkProcessed records the event id. A concurrent delivery that marked it first is not an error.
func (g *IdempotencyGuard) MarkProcessed(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	if _, err := g.store.SetNX(ctx, key, g.now().UTC().Format(time.RFC3339), g.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
	}
	return nil
}

// FirstSeen returns when the event id was marked, or the zero time when it is unknown.
func (g *IdempotencyGuard) FirstSeen(ctx context.Context, eventID string) (time.Time, error) {
	key, err := g.key(eventID)
	if err != nil {
		return time.Time{}, err
	}
	raw, err := g.store.Get(ctx, key)
	if err != nil || raw == "" {
		return time.Time{}, nil
	}
	seen, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, nil
	}
	return seen, nil
}

func (g *IdempotencyGuard) key(eventID string) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	return g.store.IdempotencyKey(g.scope, eventID), nil
}
