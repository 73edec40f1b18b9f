package middleware

import (
	"context"
	"net/http"

	"github.com/aiagenz/billing/internal/contextkeys"
	"github.com/aiagenz/billing/internal/domain"
	"github.com/aiagenz/billing/internal/handler"
)

// EntitlementChecker decides whether a user may run a metered request.
type EntitlementChecker interface {
	Check(ctx context.Context, userID string) (domain.Decision, error)
}

// RequireEntitlement admits the request only when the caller has a free
// trial use or a usable entitlement. The decision is stored under
// contextkeys.Decision so the handler can settle it after the work succeeds.
// Must be used AFTER Auth.
func RequireEntitlement(guard EntitlementChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := r.Context().Value(contextkeys.UserID).(string)
			if !ok || userID == "" {
				handler.JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}

			d, err := guard.Check(r.Context(), userID)
			if err != nil {
				handler.Error(w, err)
				return
			}
			if !d.Allowed {
				handler.Error(w, d.Err())
				return
			}

			ctx := context.WithValue(r.Context(), contextkeys.Decision, d)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
