package service

import (
	"context"
	"time"

	"github.com/studyroom/tutorbook/internal/model"
)

// Repository contracts the services run on. The pgx implementations live in
// internal/repository, an in-memory one in internal/repository/memory.
// Lookups return (nil, nil) when the row does not exist; the service layer
// decides whether that is model.ErrNotFound.

type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Account, error)
}

type AvailabilityRepository interface {
	Create(ctx context.Context, rule *model.WeeklyAvailability) error
	GetByID(ctx context.Context, id int64) (*model.WeeklyAvailability, error)
	GetByTutorID(ctx context.Context, tutorID int64) ([]*model.WeeklyAvailability, error)
	GetActiveByTutorAndWeekday(ctx context.Context, tutorID int64, weekday time.Weekday) ([]*model.WeeklyAvailability, error)
	SetActive(ctx context.Context, id int64, active bool) error
	Delete(ctx context.Context, id int64) error
}

type TimeslotRepository interface {
	// Reserve inserts an occupied ledger entry and fails with
	// model.ErrTimeslotConflict when an occupied entry already exists for
	// the same (rule, date) pair.
	Reserve(ctx context.Context, slot *model.Timeslot) error
	FindOccupied(ctx context.Context, ruleID int64, date time.Time) (*model.Timeslot, error)
	GetByAppointmentID(ctx context.Context, appointmentID int64) ([]*model.Timeslot, error)
	// HasAnyForRule reports whether any ledger entry, occupied or not,
	// references the rule. Rules with history are deactivated, never deleted.
	HasAnyForRule(ctx context.Context, ruleID int64) (bool, error)
	// ReleaseByAppointmentID flips the appointment's entries back to
	// unoccupied, keeping them as history.
	ReleaseByAppointmentID(ctx context.Context, appointmentID int64) error
}

type AppointmentRepository interface {
	// Create fails with model.ErrPendingPaymentConflict when the student
	// already holds an unpaid appointment, whichever caller loses the race.
	Create(ctx context.Context, appt *model.Appointment) error
	GetByID(ctx context.Context, id int64) (*model.Appointment, error)
	HasPendingPayment(ctx context.Context, studentID int64) (bool, error)
	// TransitionStatus writes the new lifecycle state only while the row is
	// still in from, so concurrent transitions cannot both win. Fails with
	// model.ErrInvalidAppointmentStatus otherwise.
	TransitionStatus(ctx context.Context, id int64, from, to model.AppointmentStatus) error
	// DeletePending removes the appointment only while it is still unpaid;
	// a payment committing first fails it with
	// model.ErrInvalidAppointmentStatus.
	DeletePending(ctx context.Context, id int64) error
	// ListExpiredPending returns appointments still pending payment that
	// were created strictly before the cutoff.
	ListExpiredPending(ctx context.Context, cutoff time.Time) ([]*model.Appointment, error)
	ListByTutor(ctx context.Context, tutorID int64, status *model.AppointmentStatus, page PageRequest) ([]*model.Appointment, int64, error)
	ListByStudent(ctx context.Context, studentID int64, status *model.AppointmentStatus, page PageRequest) ([]*model.Appointment, int64, error)
	List(ctx context.Context, status *model.AppointmentStatus, page PageRequest) ([]*model.Appointment, int64, error)
}

// TxRunner executes fn as one atomic unit against the shared store. Booking,
// release and status updates all run under it so no interleaving can leave
// the ledger half-written.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PageRequest is a zero-based page cursor.
type PageRequest struct {
	Page int
	Size int
}

func (p PageRequest) Offset() int { return p.Page * p.Size }

// AppointmentPage is a page of appointments plus paging metadata.
type AppointmentPage struct {
	Items         []*model.Appointment `json:"items"`
	Page          int                  `json:"page"`
	Size          int                  `json:"size"`
	TotalElements int64                `json:"total_elements"`
	TotalPages    int                  `json:"total_pages"`
	Last          bool                 `json:"last"`
}

func newAppointmentPage(items []*model.Appointment, req PageRequest, total int64) *AppointmentPage {
	pages := 0
	if req.Size > 0 {
		pages = int((total + int64(req.Size) - 1) / int64(req.Size))
	}
	return &AppointmentPage{
		Items:         items,
		Page:          req.Page,
		Size:          req.Size,
		TotalElements: total,
		TotalPages:    pages,
		Last:          req.Page >= pages-1,
	}
}
