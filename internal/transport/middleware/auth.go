package middleware

import (
	"net/http"
	"strings"

	"github.com/dineflow/restaurant-ordering/internal/auth"
	"github.com/dineflow/restaurant-ordering/pkg/logger"
)

// StaffAuth guards the staff order endpoints. Customer checkout routes are
// anonymous; only the kitchen dashboard needs a token.
func StaffAuth(verifier *auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := verifier.VerifyToken(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			staff := &auth.Staff{
				ID:   claims.StaffID,
				Name: claims.Name,
				Role: claims.Role,
			}

			ctx := auth.StaffToContext(r.Context(), staff)
			ctx = logger.With(ctx, "staff_id", staff.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole restricts a staff route to specific roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			staff, ok := auth.StaffFromContext(r.Context())
			if !ok || staff == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			for _, role := range roles {
				if staff.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			http.Error(w, "Forbidden: insufficient role", http.StatusForbidden)
		})
	}
}
