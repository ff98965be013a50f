package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Rrens/collab-hub/internal/api/response"
	"github.com/Rrens/collab-hub/internal/security"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type contextKey string

const (
	UserIDKey contextKey = "userID"
	TeamIDKey contextKey = "teamID"
)

// AuthMiddleware handles JWT authentication
type AuthMiddleware struct {
	jwtManager *security.JWTManager
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(jwtManager *security.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwtManager: jwtManager}
}

// Authenticate validates the bearer token
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			response.Unauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			response.Unauthorized(w, "invalid authorization header format")
			return
		}

		claims, err := m.jwtManager.ValidateAccessToken(parts[1])
		if err != nil {
			response.Unauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID gets the user ID from context
func GetUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

// GetTeamID gets the team ID from context
func GetTeamID(ctx context.Context) (uuid.UUID, bool) {
	teamID, ok := ctx.Value(TeamIDKey).(uuid.UUID)
	return teamID, ok
}

// TeamContext extracts the team ID from the URL and adds it to context
func TeamContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		teamIDStr := chi.URLParam(r, "teamID")
		if teamIDStr == "" {
			response.BadRequest(w, "missing team ID")
			return
		}

		teamID, err := uuid.Parse(teamIDStr)
		if err != nil {
			response.BadRequest(w, "invalid team ID")
			return
		}

		ctx := context.WithValue(r.Context(), TeamIDKey, teamID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
