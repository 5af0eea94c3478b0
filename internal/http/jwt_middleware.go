package http

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront-auth/internal/domain"
	"storefront-auth/internal/service"
)

const principalKey = "auth_principal"

// Authenticator resuelve y autoriza identidades a partir de bearer tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (service.Principal, error)
	Authorize(p service.Principal, allowed ...domain.Role) error
}

// AuthMiddleware valida el access token y guarda el Principal en el contexto.
func AuthMiddleware(logger *zap.Logger, auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			writeError(c, logger, domain.ErrInvalidToken)
			return
		}

		principal, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			writeError(c, logger, err)
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireRoles debe ir después de AuthMiddleware.
func RequireRoles(logger *zap.Logger, auth Authenticator, roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			writeError(c, logger, domain.ErrInvalidToken)
			return
		}
		if err := auth.Authorize(principal, roles...); err != nil {
			writeError(c, logger, err)
			return
		}
		c.Next()
	}
}

// GetPrincipal obtiene la identidad autenticada desde el contexto.
func GetPrincipal(c *gin.Context) (service.Principal, bool) {
	val, ok := c.Get(principalKey)
	if !ok {
		return service.Principal{}, false
	}
	p, ok := val.(service.Principal)
	return p, ok
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[len("Bearer "):])
	return token, token != ""
}
