package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/activityhub-backend/pkg/logger"
)

const (
	defaultVisitorCookie = "ah_visitor"
	visitorCookieMaxAge  = 365 * 24 * time.Hour
)

// Visitor makes sure every caller carries an anonymous visitor id. The id is read from the
// cookie, minted when missing or malformed, and stored on the request context.
func Visitor(cookieName string, secure bool, logg *logger.Logger) func(http.Handler) http.Handler {
	name := strings.TrimSpace(cookieName)
	if name == "" {
		name = defaultVisitorCookie
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			visitorID := ""
			if cookie, err := r.Cookie(name); err == nil {
				if id, parseErr := uuid.Parse(strings.TrimSpace(cookie.Value)); parseErr == nil {
					visitorID = id.String()
				}
			}
			if visitorID == "" {
				visitorID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     name,
					Value:    visitorID,
					Path:     "/",
					MaxAge:   int(visitorCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := WithVisitorID(r.Context(), visitorID)
			if logg != nil {
				ctx = logg.WithField(ctx, "visitor_id", visitorID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
