package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"rental-backend/calendar"
	"rental-backend/config"
	"rental-backend/controllers"
	"rental-backend/metrics"
	"rental-backend/notify"
	"rental-backend/payments"
	"rental-backend/reporting"
	"rental-backend/routes"
	"rental-backend/services"
)

// app holds the wired dependencies shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
	redis  *redis.Client

	metrics        metrics.Recorder
	metricsHandler http.Handler

	queue     *notify.Queue
	messenger notify.Messenger

	users        *services.UserService
	structures   *services.StructureService
	rooms        *services.RoomService
	discounts    *services.DiscountService
	availability *services.AvailabilityService
	reservations *services.ReservationService
	guests       *services.GuestService
	dms          *services.DmsReportService
	categories   *services.CategoryService
	calendarAuth *services.CalendarAuthService
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: config.SetupLogger(os.Stdout)}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	if a.db, err = config.ConnectDatabase(cfg); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := config.Migrate(a.db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := config.SeedDatabase(a.db); err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	if a.redis, err = config.ConnectRedis(ctx, cfg); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewCollector(reg)
	a.metricsHandler = metrics.Handler(reg)

	files := reporting.NewLocalStore(cfg.FileStoreDir)
	notifier := a.notifier()

	// Interfaces stay nil unless configured so the services can tell.
	var cal services.CalendarClient
	var tokens *calendar.TokenSource
	var oauth *calendar.OAuth
	if cfg.CalendarEnabled() {
		oauth = calendar.NewOAuth(calendar.OAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
		tokens = calendar.NewTokenSource(oauth, calendar.NewGormCredentialStore(a.db), a.redis, cfg.GoogleTokenCacheTTL)
		cal = calendar.NewClient(tokens, "", nil)
		a.calendarAuth = services.NewCalendarAuthService(oauth, tokens, a.redis)
	} else {
		slog.Warn("google calendar not configured, external availability checks disabled")
	}

	a.availability = services.NewAvailabilityService(a.db, cal, cfg.GoogleDefaultCalendar, cfg.GracePeriod)
	a.availability.Metrics = a.metrics

	a.reservations = services.NewReservationService(a.db, a.availability, services.ReservationConfig{
		MaxStayNights:   cfg.MaxStayNights,
		Currency:        cfg.StripeCurrency,
		FrontendURL:     cfg.FrontendURL,
		DefaultCalendar: cfg.GoogleDefaultCalendar,
	})
	a.reservations.Notifier = notifier
	a.reservations.Metrics = a.metrics
	if cfg.PaymentsEnabled() {
		a.reservations.Payments = payments.NewClient(cfg.StripeSecretKey, "", nil)
		a.reservations.Webhooks = payments.NewVerifier(cfg.StripeWebhookSecret, 0)
	} else {
		slog.Warn("stripe not configured, checkout and webhooks disabled")
	}

	a.users = services.NewUserService(a.db, notifier, cfg.BackendURL, cfg.FrontendURL)
	a.structures = services.NewStructureService(a.db, files)
	a.rooms = services.NewRoomService(a.db, files)
	a.discounts = services.NewDiscountService(a.db)
	a.guests = services.NewGuestService(a.db, reporting.NewAlloggiatiClient(cfg.AlloggiatiURL, nil))
	a.guests.Metrics = a.metrics
	a.dms = services.NewDmsReportService(a.db, files)
	a.categories = services.NewCategoryService(a.db)
	ready = true
	return a, nil
}

// notifier sends mail synchronously; WhatsApp goes through the redis queue
// when NOTIFY_ASYNC is set.
func (a *app) notifier() *notify.Dispatcher {
	mailer := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     a.cfg.SMTPHost,
		Port:     a.cfg.SMTPPort,
		Username: a.cfg.SMTPUsername,
		Password: a.cfg.SMTPPassword,
		FromName: a.cfg.SMTPFromName,
	})
	a.messenger = notify.NewWhatsAppClient(notify.WhatsAppConfig{
		AccountSID: a.cfg.WhatsAppAccountSID,
		AuthToken:  a.cfg.WhatsAppAuthToken,
		From:       a.cfg.WhatsAppFrom,
	})
	var whatsapp notify.Messenger = a.messenger
	if a.cfg.NotifyAsync && a.redis != nil {
		a.queue = notify.NewQueue(a.redis)
		whatsapp = a.queue
	}
	return notify.NewDispatcher(mailer, whatsapp, a.cfg.OwnerEmail, a.cfg.OwnerPhone)
}

func (a *app) controllers() routes.Controllers {
	h := routes.Controllers{
		Users:        controllers.NewUserController(a.users),
		Structures:   controllers.NewStructureController(a.structures, a.dms),
		Rooms:        controllers.NewRoomController(a.rooms, a.availability),
		Reservations: controllers.NewReservationController(a.reservations, a.guests),
		Discounts:    controllers.NewDiscountController(a.discounts),
		Payments:     controllers.NewPaymentController(a.reservations),
		Categories:   controllers.NewCategoryController(a.categories),
	}
	if a.calendarAuth != nil {
		h.Calendar = controllers.NewCalendarController(a.calendarAuth)
	}
	return h
}

func (a *app) worker() *services.Worker {
	w := services.NewWorker(a.reservations, a.users, a.cfg.CleanupInterval, a.cfg.ReminderHour)
	w.Queue = a.queue
	w.Messenger = a.messenger
	if a.redis != nil {
		w.Cache = a.redis
	}
	return w
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("close redis", slog.Any("error", err))
		}
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
