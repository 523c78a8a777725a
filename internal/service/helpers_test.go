package service_test

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/studyroom/tutorbook/internal/model"
	"github.com/studyroom/tutorbook/internal/repository/memory"
	"github.com/studyroom/tutorbook/internal/service"
)

// refDate is a Wednesday; the dates the tests assert on are relative to it.
var refDate = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

const reservationTTL = 30 * time.Minute

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store    *memory.Store
	clock    *fakeClock
	schedule *service.ScheduleService
	bookings *service.BookingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	clock := &fakeClock{now: refDate}
	logger := zap.NewNop()

	return &fixture{
		store: store,
		clock: clock,
		schedule: service.NewScheduleService(
			store.Accounts(), store.Rules(), store.Timeslots(), store, clock, logger,
		),
		bookings: service.NewBookingService(
			store.Accounts(), store.Rules(), store.Timeslots(), store.Appointments(),
			store, clock, reservationTTL, logger,
		),
	}
}

func (f *fixture) addTutor(rate int64) int64 {
	return f.store.PutAccount(&model.Account{
		Role:       model.RoleTutor,
		HourlyRate: decimal.NewFromInt(rate),
	})
}

func (f *fixture) addStudent() int64 {
	return f.store.PutAccount(&model.Account{Role: model.RoleStudent})
}

func in(weekday time.Weekday, start, end model.MinuteOfDay) service.RuleInput {
	return service.RuleInput{Weekday: weekday, Start: start, End: end}
}
