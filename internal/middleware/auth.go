package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"posbackend/internal/session"
)

const (
	identityKey = "identity"
	// CookieName carries the session token for page requests.
	CookieName = "pos_session"
)

// Authenticator is the part of session.Manager the guards need.
type Authenticator interface {
	Authenticate(token string) (session.Identity, error)
}

// Identify resolves the bearer token or session cookie, when present, and
// stores the identity on the context. It never rejects a request.
func Identify(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := tokenFrom(c)
		if raw == "" {
			c.Next()
			return
		}

		identity, err := auth.Authenticate(raw)
		if err != nil {
			zap.L().Debug("request token rejected", zap.String("path", c.Request.URL.Path), zap.Error(err))
			c.Next()
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

func tokenFrom(c *gin.Context) string {
	if header := strings.TrimSpace(c.GetHeader("Authorization")); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}
	if cookie, err := c.Cookie(CookieName); err == nil {
		return cookie
	}
	return ""
}

// IdentityFrom returns the identity Identify stored, if any.
func IdentityFrom(c *gin.Context) (session.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return session.Identity{}, false
	}
	identity, ok := v.(session.Identity)
	return identity, ok
}

// APIAuth answers 401 without an identity and 403 when the role is not in
// allowedRoles. No roles means any signed-in user.
func APIAuth(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if len(allowedRoles) > 0 && !identity.HasRole(allowedRoles...) {
			zap.L().Info("role denied",
				zap.String("uid", identity.UID),
				zap.String("role", identity.Role),
				zap.Strings("allowed", allowedRoles),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Next()
	}
}
