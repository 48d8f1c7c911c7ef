package middleware

import (
	"net/http"

	"jam3a/internal/authz"
	"jam3a/internal/domain"

	"go.uber.org/zap"
)

// RequireCapability lets the request through only when the policy grants
// the authenticated actor capability. Ownership is checked by the services.
func RequireCapability(policy *authz.Policy, capability authz.Capability, logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireAnyCapability(policy, []authz.Capability{capability}, logger)
}

// RequireAnyCapability passes when the actor holds at least one capability
func RequireAnyCapability(policy *authz.Policy, capabilities []authz.Capability, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				logger.Warn("Actor not found in context")
				RespondWithError(w, domain.CodeUnauthorized, "authentication required")
				return
			}

			for _, c := range capabilities {
				if policy.Can(actor.Role, c) {
					next.ServeHTTP(w, r)
					return
				}
			}

			logger.Warn("Actor lacks capability",
				zap.String("user_id", actor.ID.String()),
				zap.String("role", string(actor.Role)),
				zap.Any("capabilities", capabilities),
			)
			RespondWithError(w, domain.CodeForbidden, domain.ErrForbidden.Message)
		})
	}
}
