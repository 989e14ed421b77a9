package handlers

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"posbackend/internal/middleware"
	"posbackend/internal/models"
	"posbackend/internal/pos"
	"posbackend/internal/session"
	"posbackend/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// LoadTemplates parses the embedded page templates.
func LoadTemplates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"money": func(v float64) string { return decimal.NewFromFloat(v).StringFixed(2) },
	}).ParseFS(templateFS, "templates/*.html")
}

type pageNav struct {
	Path  string
	Label string
	Roles []string
}

var navigation = []pageNav{
	{Path: "/pos/billing", Label: "Billing"},
	{Path: "/pos/inventory", Label: "Inventory"},
	{Path: "/suppliers", Label: "Suppliers"},
	{Path: "/manager", Label: "Manager", Roles: []string{models.RoleManager, models.RoleAdmin}},
	{Path: "/admin", Label: "Admin", Roles: []string{models.RoleAdmin}},
	{Path: "/user-management", Label: "Users", Roles: []string{models.RoleAdmin}},
}

func navFor(identity session.Identity) []pageNav {
	links := make([]pageNav, 0, len(navigation))
	for _, n := range navigation {
		if len(n.Roles) == 0 || identity.HasRole(n.Roles...) {
			links = append(links, n)
		}
	}
	return links
}

func renderPage(c *gin.Context, svc *pos.Service, name, title string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["Title"] = title
	if identity, ok := middleware.IdentityFrom(c); ok {
		data["Identity"] = identity
		data["Nav"] = navFor(identity)
	}
	if svc != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		data["Online"] = svc.Online(ctx)
		cancel()
		if pending, err := svc.Queue().Len(); err == nil {
			data["Pending"] = pending
		}
	}
	c.HTML(http.StatusOK, name, data)
}

/* =========================
   PUBLIC PAGES
========================= */

func Home() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := middleware.IdentityFrom(c); ok {
			c.Redirect(http.StatusFound, middleware.DashboardPath)
			return
		}
		c.Redirect(http.StatusFound, middleware.LoginPath)
	}
}

func LoginPage(c *gin.Context) {
	renderPage(c, nil, "login.html", "Sign in", nil)
}

func UnauthorizedPage(c *gin.Context) {
	renderPage(c, nil, "unauthorized.html", "Not allowed", nil)
}

/* =========================
   SIGNED-IN PAGES
========================= */

func DashboardPage(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		renderPage(c, svc, "dashboard.html", "Dashboard", nil)
	}
}

func BillingPage(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		tax := taxEnabled(c)
		renderPage(c, svc, "billing.html", "Billing", gin.H{
			"Bill":       svc.Bill(currentIdentity(c).UID, tax),
			"TaxEnabled": tax,
			"Customers":  svc.Cache().Customers(),
		})
	}
}

func InventoryPage(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		renderPage(c, svc, "inventory.html", "Inventory", gin.H{
			"Products": svc.Inventory(pos.InventoryQuery{
				Search:   c.Query("search"),
				LowStock: cast.ToBool(c.Query("lowStock")),
				SortBy:   c.DefaultQuery("sort", "name"),
			}),
		})
	}
}

func SuppliersPage(svc *pos.Service, suppliers store.Suppliers) gin.HandlerFunc {
	return func(c *gin.Context) {
		data := gin.H{}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if svc.Online(ctx) {
			list, err := suppliers.ListSuppliers(ctx)
			if err != nil {
				zap.L().Warn("suppliers page: list failed", zap.Error(err))
			}
			data["Suppliers"] = list
		}
		renderPage(c, svc, "suppliers.html", "Suppliers", data)
	}
}

func ManagerPage(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		low, err := svc.LowStock(ctx)
		if err != nil {
			zap.L().Warn("manager page: low stock failed", zap.Error(err))
		}
		renderPage(c, svc, "manager.html", "Manager", gin.H{"LowStock": low})
	}
}

func AdminPage(svc *pos.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		pending, err := svc.Queue().List()
		if err != nil {
			zap.L().Warn("admin page: offline queue unreadable", zap.Error(err))
		}
		renderPage(c, svc, "admin.html", "Admin", gin.H{"PendingPurchases": pending})
	}
}

func UserManagementPage(svc *pos.Service, users store.Users) gin.HandlerFunc {
	return func(c *gin.Context) {
		data := gin.H{}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if svc.Online(ctx) {
			list, err := users.ListUsers(ctx)
			if err != nil {
				zap.L().Warn("user management page: list failed", zap.Error(err))
			}
			data["Users"] = list
		}
		renderPage(c, svc, "user_management.html", "User management", data)
	}
}
