package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/studyroom/tutorbook/internal/service"
)

// how long one sweep may run before its context is cancelled
const sweepTimeout = 30 * time.Second

// Scheduler runs the background reconciliation sweep. Each tick releases
// appointments stuck in PENDING_PAYMENT past the reservation deadline; a
// failed tick is simply retried on the next one.
type Scheduler struct {
	bookings *service.BookingService
	cron     *cron.Cron
	logger   *zap.Logger
}

func NewScheduler(bookings *service.BookingService, sweepInterval time.Duration, logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		bookings: bookings,
		cron:     cron.New(),
		logger:   logger,
	}
	s.cron.Schedule(cron.Every(sweepInterval), cron.FuncJob(s.runSweep))
	return s
}

// Start launches the periodic jobs in their own goroutines.
func (s *Scheduler) Start() {
	s.logger.Info("starting background scheduler")
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping background scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	released, err := s.bookings.SweepExpiredReservations(ctx)
	if err != nil {
		s.logger.Error("reservation sweep failed", zap.Error(err))
		return
	}

	if released > 0 {
		s.logger.Info("reservation sweep finished", zap.Int("released", released))
	}
}
