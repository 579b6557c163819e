package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"rental-backend/access"
	"rental-backend/controllers"
	"rental-backend/metrics"
	"rental-backend/middleware"
)

// Controllers groups the handlers mounted by SetupRouter. Calendar may be nil
// when no Google credentials are configured.
type Controllers struct {
	Users        *controllers.UserController
	Structures   *controllers.StructureController
	Rooms        *controllers.RoomController
	Reservations *controllers.ReservationController
	Discounts    *controllers.DiscountController
	Payments     *controllers.PaymentController
	Calendar     *controllers.CalendarController
	Categories   *controllers.CategoryController
}

type Options struct {
	CORSOrigins    []string
	UploadsDir     string
	Logger         *slog.Logger
	Auth           middleware.Authenticator
	Metrics        metrics.Recorder
	MetricsHandler http.Handler
	RateLimiter    *middleware.RateLimiter
}

func corsConfig(origins []string) cors.Config {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	allowCredentials := true
	for _, origin := range origins {
		if origin == "*" {
			allowCredentials = false
			break
		}
	}
	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: allowCredentials,
		MaxAge:           12 * time.Hour,
	}
}

// SetupRouter builds the HTTP API.
func SetupRouter(h Controllers, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(opts.Logger), middleware.Metrics(opts.Metrics))
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))
	if opts.UploadsDir != "" {
		r.Static("/uploads/images", opts.UploadsDir+"/images")
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	admin := middleware.Require(access.Admin)
	authenticated := middleware.Require(access.Authenticated)

	api := r.Group("/api/v1")
	api.Use(middleware.Auth(opts.Auth))
	{
		auth := api.Group("/auth")
		if opts.RateLimiter != nil {
			auth.Use(opts.RateLimiter.Middleware())
		}
		{
			auth.POST("/register", h.Users.Register)
			auth.POST("/login", h.Users.Login)
			auth.GET("/verify-email", h.Users.VerifyEmail)
			auth.POST("/logout", authenticated, h.Users.Logout)
		}

		users := api.Group("/users", authenticated)
		{
			users.GET("", middleware.Require(access.Superuser), h.Users.List)
			users.GET("/me", h.Users.Me)
			users.PUT("/complete-profile", h.Users.CompleteProfile)

			// self or superuser, checked by the handler
			users.GET("/:id", h.Users.Get)
			users.PUT("/:id", h.Users.Update)
			users.DELETE("/:id", h.Users.Delete)
		}

		structures := api.Group("/structures")
		{
			structures.GET("", h.Structures.List)
			structures.GET("/:id", h.Structures.Get)
			structures.POST("", admin, h.Structures.Create)
			structures.PUT("/:id", admin, h.Structures.Update)
			structures.DELETE("/:id", admin, h.Structures.Delete)
			structures.POST("/:id/images", admin, h.Structures.UploadImage)
			structures.POST("/:id/dms-report", admin, h.Structures.DmsReport)
		}

		rooms := api.Group("/rooms")
		{
			rooms.GET("", h.Rooms.List)
			rooms.GET("/available", h.Rooms.Available)
			rooms.GET("/:id", h.Rooms.Get)
			rooms.GET("/:id/availability", h.Rooms.RoomAvailability)
			rooms.POST("", admin, h.Rooms.Create)
			rooms.PUT("/:id", admin, h.Rooms.Update)
			rooms.DELETE("/:id", admin, h.Rooms.Delete)
			rooms.POST("/:id/images", admin, h.Rooms.UploadImage)
			rooms.PUT("/:id/calendars", admin, h.Rooms.SetCalendars)
		}

		discounts := api.Group("/discounts", admin)
		{
			discounts.GET("", h.Discounts.List)
			discounts.GET("/:id", h.Discounts.Get)
			discounts.POST("", h.Discounts.Create)
			discounts.PUT("/:id", h.Discounts.Update)
			discounts.DELETE("/:id", h.Discounts.Delete)
		}

		// owner or admin, checked by the services
		reservations := api.Group("/reservations", middleware.Require(access.Active))
		{
			reservations.GET("", h.Reservations.List)
			reservations.POST("", h.Reservations.Create)
			reservations.GET("/:reservation_id", h.Reservations.Get)
			reservations.POST("/:reservation_id/discount", h.Reservations.ApplyDiscount)
			reservations.POST("/:reservation_id/checkout-session", h.Reservations.Checkout)
			reservations.POST("/:reservation_id/cancel", h.Reservations.Cancel)
			reservations.GET("/:reservation_id/guests", h.Reservations.ListGuests)
			reservations.POST("/:reservation_id/guests", h.Reservations.SetGuests)
			reservations.POST("/:reservation_id/police-report", admin, h.Reservations.PoliceReport)
		}

		api.POST("/payments/webhook", h.Payments.Webhook)

		api.GET("/checkin-categories/:category", authenticated, h.Categories.Choices)

		if h.Calendar != nil {
			gcal := api.Group("/google-calendar")
			{
				gcal.GET("/init", admin, h.Calendar.Init)
				// the consent page redirects here without a bearer token
				gcal.GET("/redirect", h.Calendar.Redirect)
			}
		}
	}

	return r
}
