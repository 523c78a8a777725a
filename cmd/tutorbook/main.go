package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/studyroom/tutorbook/internal/app"
	"github.com/studyroom/tutorbook/internal/config"
	"github.com/studyroom/tutorbook/internal/repository"
	"github.com/studyroom/tutorbook/internal/repository/base"
	"github.com/studyroom/tutorbook/internal/service"
)

// tutorbook runs the booking engine's background half: it applies
// migrations and keeps the reservation sweep going. The request-facing
// operations are exposed through the service packages and wired up by the
// API deployment.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("failed to create connection pool", zap.Error(err))
	}
	defer pool.Close()

	migrator, err := app.NewMigrator(pool, cfg.MigrationsPath)
	if err != nil {
		logger.Fatal("failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("failed to apply migrations", zap.Error(err))
	}
	migrator.Close()

	db := base.NewDB(pool)
	accountRepo := repository.NewAccountRepository(db)
	ruleRepo := repository.NewAvailabilityRepository(db)
	slotRepo := repository.NewTimeslotRepository(db)
	apptRepo := repository.NewAppointmentRepository(db)

	bookingService := service.NewBookingService(
		accountRepo, ruleRepo, slotRepo, apptRepo,
		db, service.SystemClock(), cfg.ReservationTTL, logger,
	)

	scheduler := app.NewScheduler(bookingService, cfg.SweepInterval, logger)
	scheduler.Start()

	logger.Info("tutorbook booking engine started",
		zap.Duration("sweep_interval", cfg.SweepInterval),
		zap.Duration("reservation_ttl", cfg.ReservationTTL),
	)

	<-ctx.Done()

	scheduler.Stop()
	logger.Info("shut down cleanly")
}
