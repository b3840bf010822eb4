package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zerion/slotbook/libs/db"
	"github.com/zerion/slotbook/libs/httpx"
	"github.com/zerion/slotbook/libs/kafkax"
	"github.com/zerion/slotbook/libs/runtime"
	"github.com/zerion/slotbook/services/booking-service/internal/booking"
	"github.com/zerion/slotbook/services/booking-service/internal/calendar"
	"github.com/zerion/slotbook/services/booking-service/internal/contacts"
	"github.com/zerion/slotbook/services/booking-service/internal/events"
	"github.com/zerion/slotbook/services/booking-service/internal/googleauth"
	"github.com/zerion/slotbook/services/booking-service/internal/handlers"
	"github.com/zerion/slotbook/services/booking-service/internal/ledger"
	"github.com/zerion/slotbook/services/booking-service/internal/settings"
	"github.com/zerion/slotbook/services/booking-service/internal/sheets"
	"github.com/zerion/slotbook/services/booking-service/internal/slotlock"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// app holds every long-lived component built from Settings.
type app struct {
	cfg     settings.Settings
	logger  *slog.Logger
	ledger  *ledger.Ledger
	service *booking.Service
	events  events.Publisher
	rdb     *redis.Client
	checks  []runtime.ReadyCheck
	closers []func()
}

func newApp(ctx context.Context, cfg settings.Settings, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, events: events.Noop{}}

	store, err := a.openStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.ledger = ledger.New(store)
	a.checks = append(a.checks, runtime.ReadyCheck{Name: "ledger", Check: a.ledger.ReadyCheck})

	var locks slotlock.Locker = slotlock.NewLocal()
	if cfg.RedisAddr != "" {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		a.closers = append(a.closers, func() { _ = a.rdb.Close() })
		a.checks = append(a.checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return a.rdb.Ping(ctx).Err()
		}})
		locks = slotlock.NewRedis(a.rdb, 30*time.Second, cfg.ServiceName+":slot", logger)
	}

	if cfg.KafkaBrokers != "" {
		pub := events.NewKafkaPublisher(cfg.KafkaBrokers)
		a.events = pub
		a.closers = append(a.closers, func() { _ = pub.Close() })
		a.checks = append(a.checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	cal, sheet, err := a.googleClients(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	var leads contacts.Registrar = contacts.Noop{}
	if cfg.SendFox.Enabled() {
		leads = contacts.NewSendFox(cfg.SendFox.Token, cfg.SendFox.ListID).
			WithHTTPClient(&http.Client{Timeout: 5 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)})
	}

	a.service = booking.NewService(booking.Deps{
		Schedule: cfg.Schedule,
		Ledger:   a.ledger,
		Calendar: cal,
		Sheet:    sheet,
		Leads:    leads,
		Events:   a.events,
		Locks:    locks,
		Logger:   logger,
		TimeZone: cfg.TimeZone,
	})
	return a, nil
}

func (a *app) openStore(ctx context.Context) (ledger.Store, error) {
	switch a.cfg.Ledger.Driver {
	case settings.LedgerPostgres:
		pool, err := db.OpenWithOptions(ctx, a.cfg.Ledger.DatabaseURL, a.cfg.Ledger.Pool)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.checks = append(a.checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
		store := ledger.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return store, nil
	case settings.LedgerSQLite:
		store, err := ledger.OpenSQLite(ctx, a.cfg.Ledger.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil
	default:
		return ledger.NewFileStore(a.cfg.Ledger.Path), nil
	}
}

func (a *app) googleClients(ctx context.Context) (calendar.Provider, sheets.Appender, error) {
	g := a.cfg.Google
	if !g.Enabled() {
		a.logger.Warn("google integration disabled (GOOGLE_CALENDAR_ID and GOOGLE_SHEET_ID unset)")
		return calendar.NewDisabled(), sheets.Noop{}, nil
	}
	source, err := googleauth.TokenSource(ctx, g.Secrets())
	if err != nil {
		return nil, nil, fmt.Errorf("google credentials: %w", err)
	}
	client := googleauth.NewHTTPClient(source, g.RequestTimeout)

	var cal calendar.Provider = calendar.NewDisabled()
	if g.CalendarID != "" {
		cal = calendar.NewClient(client, g.CalendarID,
			calendar.BreakerSettings{FailureThreshold: g.BreakerFailures, OpenTimeout: g.BreakerTimeout},
			calendar.WithLocation(a.cfg.Schedule.Loc()),
			calendar.WithLogger(a.logger),
		)
	}
	var sheet sheets.Appender = sheets.Noop{}
	if g.SheetID != "" {
		sheet = sheets.NewClient(client, g.SheetID)
	}
	return cal, sheet, nil
}

// handler builds the full HTTP stack: base mux with probes, booking routes and middleware.
func (a *app) handler() http.Handler {
	mux := runtime.NewBaseMuxWithReady(a.checks...)
	handlers.NewBookingHandler(a.service, handlers.NewAdminKey(a.cfg.AdminKey), a.logger).Register(mux)

	var rateLimit httpx.Middleware
	switch {
	case a.cfg.RateLimit <= 0:
	case a.rdb != nil:
		rateLimit = httpx.NewRedisRateLimiter(a.rdb, a.cfg.RateLimit, time.Minute, a.cfg.ServiceName+":rl").Middleware(a.logger, true)
	default:
		rateLimit = httpx.NewRateLimiter(a.cfg.RateLimit, time.Minute).Middleware()
	}

	h := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(a.logger),
		httpx.WithRecover(a.logger),
		httpx.WithCORS(a.cfg.CORS),
		rateLimit,
		httpx.WithBodyLimit(a.cfg.MaxBodyBytes),
		httpx.WithTimeout(a.cfg.RequestTimeout),
	)
	return otelhttp.NewHandler(h, "booking")
}

// close waits for in-flight booking follow-ups, then releases resources in reverse order.
func (a *app) close() {
	if a.service != nil {
		a.service.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
