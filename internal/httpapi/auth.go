package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"estate/amenity-service/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

type authContextKey struct{}

// Claims is the token payload issued by the identity service.
type Claims struct {
	Role        string `json:"role"`
	BuildingID  string `json:"building_id,omitempty"`
	ApartmentID string `json:"apartment_id,omitempty"`
	jwt.RegisteredClaims
}

var errInvalidToken = errors.New("invalid token")

// ParseToken validates an HS256 token and returns the caller it names.
// Tokens without an exp claim never lapse and are refused.
// Unknown roles are rejected.
func ParseToken(secret []byte, raw string) (models.Caller, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return models.Caller{}, errInvalidToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return models.Caller{}, errInvalidToken
	}
	role, ok := models.ParseRole(claims.Role)
	if !ok {
		return models.Caller{}, errInvalidToken
	}
	return models.Caller{
		UserID:      subject,
		Role:        role,
		BuildingID:  strings.TrimSpace(claims.BuildingID),
		ApartmentID: strings.TrimSpace(claims.ApartmentID),
	}, nil
}

// SignToken issues a token for caller. Used by tooling and tests.
func SignToken(secret []byte, caller models.Caller, expiresAt time.Time) (string, error) {
	claims := Claims{
		Role:        string(caller.Role),
		BuildingID:  caller.BuildingID,
		ApartmentID: caller.ApartmentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.UserID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func AuthMiddleware(secret []byte, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		caller, err := ParseToken(secret, token)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerFromContext(ctx context.Context) (models.Caller, bool) {
	caller, ok := ctx.Value(authContextKey{}).(models.Caller)
	return caller, ok
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/debug/vars":
		return r.Method == http.MethodGet
	default:
		return r.Method == http.MethodOptions
	}
}
