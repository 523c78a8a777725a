package model

import "errors"

// Domain error taxonomy. Repositories and services wrap these with
// fmt.Errorf("...: %w", err) so callers can match with errors.Is.
var (
	// ErrNotFound covers absent tutors, students, rules and appointments,
	// including appointments that do not belong to the acting tutor.
	ErrNotFound = errors.New("not found")

	// ErrTimeslotConflict means a requested (rule, date) pair is already
	// occupied in the ledger. The whole booking attempt is aborted.
	ErrTimeslotConflict = errors.New("timeslot already occupied")

	// ErrRuleOverlap marks a submitted availability rule that intersects an
	// existing active rule on the same weekday. Overlapping rules are
	// rejected per item, the rest of the batch still persists.
	ErrRuleOverlap = errors.New("availability rule overlaps an existing rule")

	// ErrPendingPaymentConflict means the student already holds an unpaid
	// appointment and must resolve it before booking again.
	ErrPendingPaymentConflict = errors.New("student already has an appointment pending payment")

	// ErrInvalidAppointmentStatus marks a lifecycle transition the state
	// machine does not allow.
	ErrInvalidAppointmentStatus = errors.New("invalid appointment status")

	// ErrValidation marks malformed input, e.g. an end time before a start
	// time.
	ErrValidation = errors.New("validation failed")
)
