package handlers

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Keoroanthony/orderflow/internal/apperr"
	"github.com/Keoroanthony/orderflow/internal/auth"
	"github.com/Keoroanthony/orderflow/internal/cart"
	"github.com/Keoroanthony/orderflow/internal/catalog"
	"github.com/Keoroanthony/orderflow/internal/middleware"
	"github.com/Keoroanthony/orderflow/internal/orders"
	"github.com/Keoroanthony/orderflow/internal/receipts"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "handlers").Logger()

type Handler struct {
	Catalog  *catalog.Repository
	Carts    *cart.Service
	Orders   *orders.Service
	Users    *auth.Service
	Receipts *receipts.Store
	Images   *receipts.Store

	// Optional.
	OIDC        *auth.OIDC
	AuthLimiter *middleware.RateLimiter
}

func NewRouter(h *Handler, sessionSecret string) *gin.Engine {
	auth.RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.MaxMultipartMemory = receipts.MaxSize

	// ── session store ──
	store := cookie.NewStore([]byte(sessionSecret))
	store.Options(sessions.Options{Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode, MaxAge: 7 * 24 * 3600})
	r.Use(sessions.Sessions(auth.SessionName, store))

	// ── public endpoints ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "orderflow",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	public := r.Group("/")
	if h.AuthLimiter != nil {
		public.Use(h.AuthLimiter.Handler())
	}
	public.POST("/register", h.Register)
	public.POST("/login", h.Login)
	r.POST("/logout", h.Logout)

	if h.OIDC != nil {
		r.GET("/auth/oidc/login", h.OIDC.Login)
		r.GET("/auth/oidc/callback", h.OIDC.Callback)
	}

	// ── signed-in customers ──
	shop := r.Group("/", h.Users.RequireAuth())
	{
		shop.GET("/", h.ListProducts)
		shop.GET("/add_to_cart/:id", h.AddToCart)
		shop.GET("/remove_from_cart/:id", h.RemoveFromCart)
		shop.GET("/cart", h.ViewCart)
		shop.GET("/checkout", h.ViewCart)
		shop.POST("/checkout", h.Checkout)
		shop.GET("/orders", h.ListOrders)
		shop.POST("/upload_receipt/:id", h.UploadReceipt)
	}

	// ── admin ──
	admin := r.Group("/admin", h.Users.RequireAuth(), auth.RequireAdmin())
	{
		admin.GET("/products", h.AdminListProducts)
		admin.POST("/products", h.AdminUpsertProduct)
		admin.GET("/products/:id", h.AdminGetProduct)
		admin.POST("/products/:id", h.AdminUpdateProduct)
		admin.GET("/orders", h.AdminListOrders)
		admin.POST("/orders", h.AdminUpdateOrderStatus)
		admin.GET("/orders/:id/history", h.AdminOrderHistory)
		admin.GET("/users", h.AdminListUsers)
		admin.POST("/users", h.AdminSetBlocked)
	}

	return r
}

func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// checked reads an HTML checkbox or a boolean form value.
func checked(raw string) bool {
	if raw == "on" {
		return true
	}
	b, _ := strconv.ParseBool(raw)
	return b
}
