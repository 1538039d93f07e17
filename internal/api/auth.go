package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

// userIDKey carries the authenticated recipient id through the request context.
const userIDKey contextKey = "user_id"

// Claims is the JWT payload issued by the identity service.
type Claims struct {
	jwt.RegisteredClaims
	// UserID is the unique identifier of the authenticated user.
	UserID string `json:"user_id"`
}

// GenerateToken signs an HS256 token for the given user. Used by tests and
// operational tooling; production tokens come from the identity service.
func GenerateToken(secret, userID string) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "gearup-backend",
		},
		UserID: userID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// authMiddleware verifies the bearer token and stores the user id in the
// request context. Token validation failures end the request with 401.
func authMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
			if !found || tokenString == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid || claims.UserID == "" {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// currentUserID returns the authenticated recipient id from the request
// context, or "" when the request is unauthenticated.
func currentUserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
