package middleware

import (
	"net/http"
	"strings"

	"github.com/yorby/backend/internal/auth"
)

// CoachMiddleware ensures the request carries an authenticated user who is a
// coach, and injects the validated identity into the request context.
//
// Session verification happens at the edge; by the time a request reaches
// this service the gateway has resolved the session to a user id, carried
// either as a bearer subject or the X-User-ID header.
func CoachMiddleware(authorizer auth.Authorizer, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				userID = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}
		if userID == "" {
			http.Error(w, "Missing user context", http.StatusUnauthorized)
			return
		}

		identity, err := authorizer.ValidateCoach(ctx, userID)
		if err != nil {
			http.Error(w, "Authorization check failed", http.StatusInternalServerError)
			return
		}
		if identity == nil {
			http.Error(w, "Not a coach", http.StatusForbidden)
			return
		}

		ctx = auth.WithIdentity(ctx, identity)
		next(w, r.WithContext(ctx))
	}
}
