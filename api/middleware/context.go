package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/activityhub-backend/internal/referrals"
)

type contextKey string

const (
	ctxUserID    contextKey = "user_id"
	ctxVisitorID contextKey = "visitor_id"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func VisitorIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxVisitorID).(string); ok {
		return v
	}
	return ""
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithVisitorID injects the anonymous visitor session into the context.
func WithVisitorID(ctx context.Context, visitorID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxVisitorID, visitorID)
}

// SubjectFromContext builds the referral subject for the caller. Both parts are optional.
func SubjectFromContext(ctx context.Context) referrals.Subject {
	subject := referrals.Subject{SessionID: VisitorIDFromContext(ctx)}
	if raw := UserIDFromContext(ctx); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			subject.UserID = &id
		}
	}
	return subject
}
