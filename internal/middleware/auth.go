package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"jam3a/internal/authz"
	"jam3a/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const actorKey contextKey = "actor"

// AuthMiddleware validates bearer JWTs and stores the actor in the context
func AuthMiddleware(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Debug("Missing authorization header")
				RespondWithError(w, domain.CodeUnauthorized, "missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.Debug("Invalid authorization header format")
				RespondWithError(w, domain.CodeUnauthorized, "invalid authorization header format")
				return
			}

			token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil {
				logger.Debug("Token validation failed", zap.Error(err))
				if errors.Is(err, jwt.ErrTokenExpired) {
					RespondWithError(w, domain.CodeUnauthorized, "token expired")
				} else {
					RespondWithError(w, domain.CodeUnauthorized, "invalid token")
				}
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || !token.Valid {
				RespondWithError(w, domain.CodeUnauthorized, "invalid token")
				return
			}

			actor, err := actorFromClaims(claims)
			if err != nil {
				logger.Warn("Rejected token claims", zap.Error(err))
				RespondWithError(w, domain.CodeUnauthorized, "invalid token claims")
				return
			}

			logger.Debug("User authenticated",
				zap.String("user_id", actor.ID.String()),
				zap.String("role", string(actor.Role)),
			)

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

func actorFromClaims(claims jwt.MapClaims) (authz.Actor, error) {
	rawID, ok := claims["user_id"].(string)
	if !ok {
		return authz.Actor{}, errors.New("missing user_id claim")
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return authz.Actor{}, errors.New("malformed user_id claim")
	}

	rawRole, ok := claims["role"].(string)
	if !ok {
		return authz.Actor{}, errors.New("missing role claim")
	}
	role := domain.Role(rawRole)
	if !role.Valid() {
		return authz.Actor{}, errors.New("unknown role claim")
	}

	return authz.Actor{ID: id, Role: role}, nil
}

// WithActor stores the authenticated actor in ctx
func WithActor(ctx context.Context, actor authz.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the actor set by AuthMiddleware
func ActorFromContext(ctx context.Context) (authz.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(authz.Actor)
	return actor, ok
}
