package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/SodiumBank/Datum/pkg/api"
)

// JWTValidator validates bearer tokens and extracts role claims.
type JWTValidator struct {
	KeySet KeySet
}

// Claims are the JWT claims DatumPlan expects.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

func NewJWTValidator(ks KeySet) *JWTValidator {
	if ks == nil {
		return nil
	}
	return &JWTValidator{KeySet: ks}
}

func (v *JWTValidator) Validate(tokenStr string) (*Claims, error) {
	if v.KeySet == nil {
		return nil, fmt.Errorf("auth: validator uninitialized")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, v.KeySet.KeyFunc())
	if err != nil {
		return nil, fmt.Errorf("auth: token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("auth: invalid token")
	}
	return claims, nil
}

// publicPaths never require authentication — read-only discovery
// endpoints that don't mutate state.
var publicPaths = map[string]bool{
	"/health": true,
}

// NewMiddleware builds JWT auth middleware that populates the request
// context's Principal. Requests to mutating endpoints without a valid
// bearer token are rejected (fail closed); if validator is nil, every
// non-public request is rejected.
func NewMiddleware(validator *JWTValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.WriteUnauthorized(w, "missing Authorization header")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				api.WriteUnauthorized(w, "invalid Authorization header format (expected 'Bearer <token>')")
				return
			}

			if validator == nil {
				api.WriteUnauthorized(w, "authentication not configured")
				return
			}
			claims, err := validator.Validate(parts[1])
			if err != nil {
				api.WriteUnauthorized(w, "invalid or expired token")
				return
			}
			if claims.Subject == "" {
				api.WriteUnauthorized(w, "token subject is required")
				return
			}

			roles := make([]Role, 0, len(claims.Roles))
			for _, r := range claims.Roles {
				roles = append(roles, Role(r))
			}
			principal := &BasePrincipal{ID: claims.Subject, Roles: roles}
			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects requests whose Principal lacks one of the
// allowed roles.
func RequireRole(allowed ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := GetPrincipal(r.Context())
			if err != nil {
				api.WriteUnauthorized(w, "")
				return
			}
			for _, role := range allowed {
				if principal.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			api.WriteForbidden(w, "caller's role does not permit this operation")
		})
	}
}
