package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-appointments/internal/user"
)

type contextKey string

const identityKey contextKey = "identity"

// Claims are issued by the identity provider. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// Authenticate enforces an HMAC-signed bearer token and stores the caller's
// identity in the request context.
func Authenticate(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				unauthorized(w, "authentication disabled")
				return
			}
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w, "missing authorization header")
				return
			}

			id, err := Parse(secret, strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// Parse validates a token and extracts the identity it carries.
func Parse(secret, tokenString string) (user.Identity, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return user.Identity{}, err
	}
	if !token.Valid {
		return user.Identity{}, jwt.ErrTokenInvalidClaims
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return user.Identity{}, fmt.Errorf("subject is not a user id: %w", err)
	}

	return user.Identity{ID: id, Email: claims.Email, EmailVerified: claims.EmailVerified}, nil
}

// Sign issues a token for id. It is used by the command line tools and tests
// that stand in for the identity provider.
func Sign(secret string, id user.Identity, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:         id.Email,
		EmailVerified: id.EmailVerified,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func WithIdentity(ctx context.Context, id user.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the authenticated identity if present.
func IdentityFromContext(ctx context.Context) (user.Identity, bool) {
	id, ok := ctx.Value(identityKey).(user.Identity)
	return id, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "details": msg})
}
