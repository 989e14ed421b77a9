package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	LoginPath        = "/login"
	DashboardPath    = "/dashboard"
	UnauthorizedPath = "/unauthorized"
)

func redirect(c *gin.Context, to string) {
	c.Redirect(http.StatusFound, to)
	c.Abort()
}

// RequireAuth sends anonymous visitors to the login page.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := IdentityFrom(c); !ok {
			redirect(c, LoginPath)
			return
		}
		c.Next()
	}
}

// RequireAnonymous keeps signed-in users off public pages such as login.
func RequireAnonymous() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := IdentityFrom(c); ok {
			redirect(c, DashboardPath)
			return
		}
		c.Next()
	}
}

// RequireRole admits signed-in users whose role is in allowedRoles.
func RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			redirect(c, LoginPath)
			return
		}
		if !identity.HasRole(allowedRoles...) {
			redirect(c, UnauthorizedPath)
			return
		}
		c.Next()
	}
}
