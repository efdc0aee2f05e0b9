package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/supporthub/internal/domain"
	apperrors "github.com/spec-kit/supporthub/pkg/util/errorutil"
)

// RequireRole ensures the principal holds one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireTenantParam ensures the principal is scoped to the tenant named by the route param.
func RequireTenantParam(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.CanAccessTenant(c.Params(param)) {
			return apperrors.NewForbidden("tenant access denied")
		}
		return c.Next()
	}
}
