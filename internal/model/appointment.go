package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type AppointmentStatus string

const (
	StatusPendingPayment AppointmentStatus = "PENDING_PAYMENT" // awaiting payment, sweepable
	StatusPaid           AppointmentStatus = "PAID"            // payment confirmed
	StatusDone           AppointmentStatus = "DONE"            // lesson held, terminal
	StatusCanceled       AppointmentStatus = "CANCELED"        // canceled by tutor, terminal
)

func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	switch AppointmentStatus(s) {
	case StatusPendingPayment, StatusPaid, StatusDone, StatusCanceled:
		return AppointmentStatus(s), nil
	}
	return "", fmt.Errorf("unknown appointment status %q: %w", s, ErrInvalidAppointmentStatus)
}

// Terminal reports whether the status admits no further transition.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusDone || s == StatusCanceled
}

// CanTransitionTo encodes the lifecycle graph:
// PENDING_PAYMENT -> PAID -> {DONE, CANCELED}. A pending appointment may also
// be released outright, which is deletion rather than a transition.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	switch s {
	case StatusPendingPayment:
		return next == StatusPaid
	case StatusPaid:
		return next == StatusDone || next == StatusCanceled
	}
	return false
}

// Appointment is a booking spanning one or more timeslots. Tuition is
// computed once at creation and never recomputed, even if the tutor's rate
// changes later.
type Appointment struct {
	ID          int64             `json:"id"`
	StudentID   int64             `json:"student_id"`
	TutorID     int64             `json:"tutor_id"`
	Description string            `json:"description"`
	Status      AppointmentStatus `json:"status"`
	Tuition     decimal.Decimal   `json:"tuition"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`

	// Loaded alongside the row, not a column.
	Timeslots []*Timeslot `json:"timeslots,omitempty"`
}
