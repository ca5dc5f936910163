package server

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/Freeeeeet/slotswap/internal/model"
	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
)

const defaultAdminRole = "admin"

type AuthConfig struct {
	JWTSecret string
	AdminRole string
}

type actorKey struct{}

type jwtClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

func withActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFromContext(ctx context.Context) (model.Actor, huma.StatusError) {
	if actor, ok := ctx.Value(actorKey{}).(model.Actor); ok && actor.UserID != "" {
		return actor, nil
	}
	return model.Actor{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

// authenticateJWT проверяет HS256 токен; sub - id пользователя,
// роль администратора даёт право управлять чужими слотами
func authenticateJWT(token string, cfg AuthConfig) (model.Actor, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return model.Actor{}, errors.New("jwt secret not configured")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil {
		return model.Actor{}, err
	}
	if !parsed.Valid {
		return model.Actor{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return model.Actor{}, errors.New("subject claim required")
	}

	adminRole := cfg.AdminRole
	if adminRole == "" {
		adminRole = defaultAdminRole
	}
	return model.Actor{
		UserID:  claims.Subject,
		IsAdmin: slices.Contains(claims.Roles, adminRole),
	}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware требует bearer токен для всего под basePath, кроме health
func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	healthPath := basePath + "/health"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath+"/") || req.URL.Path == healthPath {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			}
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			actor, err := authenticateJWT(token, cfg)
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}

			next.ServeHTTP(w, req.WithContext(withActor(req.Context(), actor)))
		})
	}
}
