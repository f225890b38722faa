package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"availability-service/internal/app"
	"availability-service/internal/availability"
	"availability-service/internal/booking"
	"availability-service/internal/config"
	"availability-service/internal/contact"
	"availability-service/internal/gateway"
	"availability-service/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)
	if cfg.Log.Level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openCredentialStore(ctx, cfg.Credential)
	if err != nil {
		return err
	}
	defer closeStore()

	provider, err := gateway.NewGoogleProvider(gateway.GoogleConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
	})
	if err != nil {
		return err
	}
	states, err := gateway.NewStateSigner([]byte(cfg.Auth.StateSecret), cfg.Auth.StateTTL)
	if err != nil {
		return err
	}
	gw := gateway.New(provider, store, states, gateway.Options{
		CalendarID: cfg.Google.CalendarID,
		Timeout:    cfg.Google.Timeout,
		Logger:     logger,
	})
	if err := gw.Restore(ctx); err != nil {
		return err
	}

	holds, closeHolds := openHolder(ctx, cfg, logger)
	defer closeHolds()

	catalog := cfg.Calendar.Slots
	availabilitySvc := availability.NewService(gw, catalog, availability.Options{
		Location:      cfg.Calendar.Location,
		BusyThreshold: cfg.Calendar.BusyThreshold,
		MaxRangeDays:  cfg.Calendar.MaxRangeDays,
		Logger:        logger,
	})
	orchestrator := booking.NewOrchestrator(gw, catalog, booking.Options{
		Location:        cfg.Calendar.Location,
		TimeZone:        cfg.Calendar.TimeZone,
		Summary:         cfg.Booking.Summary,
		ReminderMinutes: cfg.Booking.ReminderMinutes,
		VerifyFreeBusy:  cfg.Booking.VerifyFreeBusy,
		Holds:           holds,
		HoldTTL:         cfg.Booking.HoldTTL,
		Logger:          logger,
	})

	var relay app.ContactRelay
	if cfg.Mail.From != "" {
		relay = contact.NewRelay(&contact.SMTPMailer{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
		}, cfg.Mail.From, cfg.Mail.To, logger)
	} else {
		logger.Warn("mail.from not set; contact route disabled")
	}

	admin := app.AdminAuth{Tokens: cfg.Auth.AdminTokens, JWTSecret: cfg.Auth.JWTSecret}
	if !admin.Enabled() {
		logger.Warn("no admin token configured; /auth/start is open")
	}

	a := &app.App{
		Gateway:      gw,
		Availability: availabilitySvc,
		Booking:      orchestrator,
		Contact:      relay,
		Admin:        admin,
		FrontendURL:  cfg.HTTP.FrontendURL,
		Logger:       logger,
	}
	return server.Run(ctx, a.Router(), server.Options{
		Port:            cfg.HTTP.Port,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		Logger:          logger,
	})
}

func openCredentialStore(ctx context.Context, cfg config.Credential) (gateway.CredentialStore, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		store := gateway.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	case config.StoreSQLite:
		store, err := gateway.OpenSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return gateway.NewMemoryStore(), func() {}, nil
	}
}

// openHolder returns nil when holds are disabled. A Redis that does not
// answer at startup is logged; bookings then proceed without holds.
func openHolder(ctx context.Context, cfg config.Config, logger *slog.Logger) (booking.Holder, func()) {
	if cfg.Booking.HoldTTL <= 0 {
		return nil, func() {}
	}
	if cfg.Booking.HoldStore != config.StoreRedis {
		return booking.NewMemoryHolder(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable for slot holds", "addr", cfg.Redis.Addr, "error", err)
	}
	return booking.NewRedisHolder(client, "slot-hold:"), func() { _ = client.Close() }
}
