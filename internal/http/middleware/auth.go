package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/davidbz/kodama/internal/config"
	"github.com/davidbz/kodama/internal/domain"
	"github.com/davidbz/kodama/internal/observability"
)

// Principal identifies the authenticated caller of a request.
type Principal struct {
	AccountID   string
	Email       string
	DisplayName string
	Role        domain.Role
}

type principalContextKey struct{}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// WithPrincipal attaches a principal to the context. Exposed for tests.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

var authExemptPaths = map[string]bool{
	"/health": true,
}

// Auth creates a middleware that authenticates requests with a bearer JWT
// signed with the configured secret. When no secret is configured the
// middleware falls back to trusting X-Account-* headers, which keeps local
// development usable without an identity provider.
func Auth(cfg *config.AuthConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authExemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			var principal Principal
			var err error
			if cfg == nil || cfg.JWTSecret == "" {
				principal, err = principalFromHeaders(r)
			} else {
				principal, err = principalFromToken(r, cfg.JWTSecret)
			}
			if err != nil {
				observability.FromContext(r.Context()).Warn("authentication failed",
					observability.String("path", r.URL.Path),
					observability.Error(err))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			ctx = observability.WithAccountID(ctx, principal.AccountID)
			ctx = observability.WithRole(ctx, string(principal.Role))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func principalFromToken(r *http.Request, secret string) (Principal, error) {
	header := r.Header.Get("Authorization")
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || raw == "" {
		return Principal{}, errors.New("missing bearer token")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !token.Valid {
		return Principal{}, errors.New("invalid token")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return Principal{}, errors.New("token has no subject")
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	role, _ := claims["role"].(string)

	return Principal{
		AccountID:   sub,
		Email:       email,
		DisplayName: name,
		Role:        parseRole(role),
	}, nil
}

func principalFromHeaders(r *http.Request) (Principal, error) {
	accountID := r.Header.Get("X-Account-Id")
	if accountID == "" {
		return Principal{}, errors.New("missing X-Account-Id header")
	}
	return Principal{
		AccountID:   accountID,
		Email:       r.Header.Get("X-Account-Email"),
		DisplayName: r.Header.Get("X-Account-Name"),
		Role:        parseRole(r.Header.Get("X-Account-Role")),
	}, nil
}

func parseRole(role string) domain.Role {
	if role == string(domain.RoleAdmin) {
		return domain.RoleAdmin
	}
	return domain.RoleUser
}
