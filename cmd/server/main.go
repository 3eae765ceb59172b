package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/templhub/backend/internal/alerts"
	"github.com/templhub/backend/internal/auth"
	"github.com/templhub/backend/internal/catalog"
	"github.com/templhub/backend/internal/db"
	mware "github.com/templhub/backend/internal/middleware"
	"github.com/templhub/backend/internal/orders"
	"github.com/templhub/backend/internal/payments"
	"github.com/templhub/backend/internal/users"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	// Database connection and schema bootstrap
	db.Init()

	// Email worker and queue client
	if err := alerts.ConfigureMailerFromEnv(); err != nil {
		log.Printf("mailer not configured, emails will fail: %v", err)
	}
	alerts.Init()
	defer alerts.Close()

	// Wiring
	directory := users.NewDirectory(db.Conn)
	notifier := alerts.NewNotifier(db.Conn, directory)

	catalogStore := catalog.NewStore(db.Conn)
	catalogHandler := catalog.NewHandler(catalogStore)

	orderStore := orders.NewStore(db.Conn)
	orderService := orders.NewService(orderStore, catalogStore, directory, notifier)

	var checkout payments.SessionProvider
	if p, err := payments.NewHTTPProviderFromEnv(); err != nil {
		log.Printf("checkout disabled: %v", err)
		checkout = payments.DisabledProvider{}
	} else {
		checkout = p
	}
	orderHandler := orders.NewHandler(orderService, checkout)

	e := echo.New()

	// Basic middleware
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	// Health and root routes
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok", "service": "templhub"})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if db.Conn == nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db not initialized"})
		}
		if err := db.Conn.Ping(context.Background()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	// Public routes
	// Auth routes with per-IP rate limiting to protect signup/login from abuse
	authGroup := e.Group("/auth")
	authGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))
	authGroup.POST("/signup", auth.Signup)
	authGroup.POST("/login", auth.Login)

	e.GET("/catalog/packages", catalogHandler.ListPackages)
	e.GET("/catalog/packages/:id", catalogHandler.GetPackage)

	// Protected routes
	api := e.Group("")
	api.Use(mware.JWTMiddleware)

	api.GET("/auth/me", auth.Me)

	api.GET("/notifications", alerts.ListNotifications)
	api.POST("/notifications/:id/read", alerts.MarkNotificationRead)

	api.POST("/catalog/packages", catalogHandler.CreatePackage, mware.RequireRoles("creator"))

	api.POST("/orders", orderHandler.CreateOrder, mware.RequireRoles("buyer"))
	api.POST("/orders/generic", orderHandler.CreateGenericRequest, mware.RequireRoles("buyer"))
	api.GET("/orders/mine", orderHandler.ListMine)
	api.GET("/orders/assigned", orderHandler.ListAssigned, mware.RequireRoles("creator", "admin"))
	api.GET("/orders/:id", orderHandler.GetOrder)
	api.POST("/orders/:id/status", orderHandler.UpdateStatus, mware.RequireRoles("creator", "admin"))
	api.POST("/orders/:id/complete", orderHandler.Complete, mware.RequireRoles("buyer"))
	api.POST("/orders/:id/revision", orderHandler.RequestRevision, mware.RequireRoles("buyer"))
	api.POST("/orders/:id/cancel", orderHandler.Cancel)
	api.POST("/orders/:id/dispute", orderHandler.OpenDispute, mware.RequireRoles("buyer"))
	api.POST("/orders/:id/messages", orderHandler.SendMessage)
	api.GET("/orders/:id/messages", orderHandler.ListMessages)
	api.POST("/orders/:id/checkout", orderHandler.Checkout, mware.RequireRoles("buyer"))
	api.POST("/orders/:id/payment/confirm", orderHandler.ConfirmPayment, mware.RequireRoles("buyer"))

	// Admin routes
	admin := e.Group("/admin")
	admin.Use(mware.JWTMiddleware)
	admin.Use(mware.AdminGuard)

	admin.GET("/orders", orderHandler.AdminListOrders)
	admin.POST("/orders/:id/assign", orderHandler.AdminAssign)
	admin.POST("/orders/:id/resolve", orderHandler.AdminResolveDispute)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := e.Start(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
