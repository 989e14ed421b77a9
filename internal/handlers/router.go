package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"posbackend/internal/metrics"
	"posbackend/internal/middleware"
	"posbackend/internal/models"
	"posbackend/internal/pos"
	"posbackend/internal/session"
	"posbackend/internal/store"
)

// Deps is everything the routes need. Store is the remote store the service
// wraps; it serves the online-only directories (users, suppliers).
type Deps struct {
	Service  *pos.Service
	Store    store.Store
	Sessions *session.Manager
	Metrics  *metrics.Metrics
}

// Register mounts pages, the JSON API, /healthz and /metrics on r. The
// templates must already be set with r.SetHTMLTemplate.
func Register(r *gin.Engine, deps Deps) {
	svc := deps.Service
	managers := []string{models.RoleManager, models.RoleAdmin}

	r.Use(middleware.Identify(deps.Sessions))

	r.GET("/healthz", Health(svc))
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	/* ==== PAGES ==== */

	r.GET("/", Home())
	r.GET(middleware.LoginPath, middleware.RequireAnonymous(), LoginPage)
	r.GET(middleware.UnauthorizedPath, UnauthorizedPage)

	pages := r.Group("/")
	pages.Use(middleware.RequireAuth())
	{
		pages.GET(middleware.DashboardPath, DashboardPage(svc))
		pages.GET("/pos/billing", BillingPage(svc))
		pages.GET("/pos/inventory", InventoryPage(svc))
		pages.GET("/suppliers", SuppliersPage(svc, deps.Store))
	}
	r.GET("/manager", middleware.RequireRole(managers...), ManagerPage(svc))
	r.GET("/admin", middleware.RequireRole(models.RoleAdmin), AdminPage(svc))
	r.GET("/user-management", middleware.RequireRole(models.RoleAdmin), UserManagementPage(svc, deps.Store))

	/* ==== API ==== */

	api := r.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/login", Login(svc, deps.Store, deps.Sessions))
		auth.POST("/signup", Signup(svc, deps.Store, deps.Sessions))
		auth.POST("/logout", Logout(deps.Sessions))
		auth.GET("/me", middleware.APIAuth(), Me())
	}

	signedIn := api.Group("")
	signedIn.Use(middleware.APIAuth())
	{
		signedIn.GET("/sync", LoadWithCache(svc))
		signedIn.POST("/sync/refresh", RefreshCache(svc))

		signedIn.GET("/products", ListProducts(svc))
		signedIn.GET("/products/search", SearchProducts(svc))
		signedIn.GET("/products/barcode/:barcode", ProductByBarcode(svc))
		signedIn.GET("/products/low-stock", LowStock(svc))
		signedIn.GET("/products/export", ExportProducts(svc))

		signedIn.GET("/inventory/transactions", ListTransactions(svc))

		signedIn.GET("/bill", GetBill(svc))
		signedIn.POST("/bill/scan", ScanBarcode(svc))
		signedIn.POST("/bill/items", AddBillItem(svc))
		signedIn.PATCH("/bill/items/:productId", SetBillQuantity(svc))
		signedIn.DELETE("/bill/items/:productId", RemoveBillItem(svc))
		signedIn.DELETE("/bill", ClearBill(svc))
		signedIn.POST("/bill/checkout", Checkout(svc))

		signedIn.GET("/purchases", ListPurchases(svc))

		signedIn.GET("/customers/search", SearchCustomers(svc))
		signedIn.POST("/customers", CreateCustomer(svc))

		signedIn.GET("/suppliers", ListSuppliers(svc, deps.Store))

		signedIn.GET("/offline-purchases", ListPendingPurchases(svc))
		signedIn.POST("/offline-purchases/replay", ReplayPendingPurchases(svc))
	}

	manage := api.Group("")
	manage.Use(middleware.APIAuth(managers...))
	{
		manage.POST("/products", CreateProduct(svc))
		manage.POST("/products/:id/adjust", AdjustStock(svc))
		manage.POST("/products/:id/restock", Restock(svc))
		manage.POST("/purchases/:id/cancel", CancelPurchase(svc))
		manage.POST("/suppliers", CreateSupplier(svc, deps.Store))
		manage.POST("/offline-purchases/:key/requeue", RequeuePendingPurchase(svc))
		manage.DELETE("/offline-purchases/:key", DiscardPendingPurchase(svc))
	}

	admin := api.Group("/users")
	admin.Use(middleware.APIAuth(models.RoleAdmin))
	{
		admin.GET("", ListUsers(svc, deps.Store))
		admin.POST("", CreateUser(svc, deps.Store))
		admin.PATCH("/:id", UpdateUser(svc, deps.Store, deps.Sessions))
	}

	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method == http.MethodGet && !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Redirect(http.StatusFound, middleware.LoginPath)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}
