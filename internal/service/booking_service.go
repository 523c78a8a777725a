package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/studyroom/tutorbook/internal/model"
)

// BookingService turns bookable slots into appointments, runs the
// appointment lifecycle and reclaims abandoned reservations.
type BookingService struct {
	accountRepo AccountRepository
	ruleRepo    AvailabilityRepository
	slotRepo    TimeslotRepository
	apptRepo    AppointmentRepository
	tx          TxRunner
	clock       Clock
	logger      *zap.Logger

	// how long an unpaid reservation may block a slot
	reservationTTL time.Duration
}

func NewBookingService(
	accountRepo AccountRepository,
	ruleRepo AvailabilityRepository,
	slotRepo TimeslotRepository,
	apptRepo AppointmentRepository,
	tx TxRunner,
	clock Clock,
	reservationTTL time.Duration,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		accountRepo:    accountRepo,
		ruleRepo:       ruleRepo,
		slotRepo:       slotRepo,
		apptRepo:       apptRepo,
		tx:             tx,
		clock:          clock,
		reservationTTL: reservationTTL,
		logger:         logger,
	}
}

// CreateAppointment books the next concrete occurrence of each rule for the
// student. The whole request is one atomic unit: either every requested
// (rule, date) pair is reserved and the appointment exists with its tuition,
// or nothing is written.
func (s *BookingService) CreateAppointment(ctx context.Context, studentID, tutorID int64, description string, ruleIDs []int64) (*model.Appointment, error) {
	if len(ruleIDs) == 0 {
		return nil, fmt.Errorf("no rules requested: %w", model.ErrValidation)
	}

	tutor, err := s.accountRepo.GetByID(ctx, tutorID)
	if err != nil {
		return nil, fmt.Errorf("get tutor: %w", err)
	}
	if tutor == nil || !tutor.IsTutor() {
		return nil, fmt.Errorf("tutor %d: %w", tutorID, model.ErrNotFound)
	}

	student, err := s.accountRepo.GetByID(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}
	if student == nil {
		return nil, fmt.Errorf("student %d: %w", studentID, model.ErrNotFound)
	}

	now := s.clock.Now()
	var appt *model.Appointment

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// fail fast before touching the ledger
		pending, err := s.apptRepo.HasPendingPayment(ctx, studentID)
		if err != nil {
			return fmt.Errorf("check pending payment: %w", err)
		}
		if pending {
			return fmt.Errorf("student %d: %w", studentID, model.ErrPendingPaymentConflict)
		}

		hours := decimal.Zero
		type reservation struct {
			rule *model.WeeklyAvailability
			date time.Time
		}
		reservations := make([]reservation, 0, len(ruleIDs))

		for _, ruleID := range ruleIDs {
			rule, err := s.ruleRepo.GetByID(ctx, ruleID)
			if err != nil {
				return fmt.Errorf("get rule: %w", err)
			}
			if rule == nil || rule.TutorID != tutorID || !rule.Active {
				return fmt.Errorf("rule %d: %w", ruleID, model.ErrNotFound)
			}
			reservations = append(reservations, reservation{rule: rule, date: rule.NextOccurrence(now)})
			hours = hours.Add(rule.Hours())
		}

		appt = &model.Appointment{
			StudentID:   studentID,
			TutorID:     tutorID,
			Description: description,
			Status:      model.StatusPendingPayment,
			Tuition:     tutor.HourlyRate.Mul(hours).Round(2),
			CreatedAt:   now,
		}
		if err := s.apptRepo.Create(ctx, appt); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		for _, r := range reservations {
			slot := &model.Timeslot{
				RuleID:        r.rule.ID,
				Date:          r.date,
				Occupied:      true,
				AppointmentID: &appt.ID,
			}
			if err := s.slotRepo.Reserve(ctx, slot); err != nil {
				return fmt.Errorf("reserve rule %d on %s: %w", r.rule.ID, r.date.Format("2006-01-02"), err)
			}
			appt.Timeslots = append(appt.Timeslots, slot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment created",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("student_id", studentID),
		zap.Int64("tutor_id", tutorID),
		zap.Int("timeslots", len(appt.Timeslots)),
		zap.String("tuition", appt.Tuition.String()),
	)

	return appt, nil
}

// UpdateAppointmentStatus lets the owning tutor close out a paid appointment
// as DONE or CANCELED. Canceling a paid appointment releases its timeslots
// back into availability; the appointment itself stays as history.
func (s *BookingService) UpdateAppointmentStatus(ctx context.Context, tutorID, appointmentID int64, status model.AppointmentStatus) error {
	if status != model.StatusDone && status != model.StatusCanceled {
		return fmt.Errorf("target status %s: %w", status, model.ErrInvalidAppointmentStatus)
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		appt, err := s.apptRepo.GetByID(ctx, appointmentID)
		if err != nil {
			return fmt.Errorf("get appointment: %w", err)
		}
		if appt == nil || appt.TutorID != tutorID {
			return fmt.Errorf("appointment %d: %w", appointmentID, model.ErrNotFound)
		}
		if !appt.Status.CanTransitionTo(status) {
			return fmt.Errorf("cannot move %s to %s: %w", appt.Status, status, model.ErrInvalidAppointmentStatus)
		}

		// conditional write: a concurrent transition that committed first
		// fails this one instead of being overwritten
		if err := s.apptRepo.TransitionStatus(ctx, appointmentID, appt.Status, status); err != nil {
			return fmt.Errorf("update status: %w", err)
		}

		if status == model.StatusCanceled {
			if err := s.slotRepo.ReleaseByAppointmentID(ctx, appointmentID); err != nil {
				return fmt.Errorf("release timeslots: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("appointment status updated",
		zap.Int64("appointment_id", appointmentID),
		zap.Int64("tutor_id", tutorID),
		zap.String("status", string(status)),
	)

	return nil
}

// ConfirmPayment moves a pending appointment to PAID. Called by the payment
// collaborator once the gateway confirms.
func (s *BookingService) ConfirmPayment(ctx context.Context, appointmentID int64) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		appt, err := s.apptRepo.GetByID(ctx, appointmentID)
		if err != nil {
			return fmt.Errorf("get appointment: %w", err)
		}
		if appt == nil {
			return fmt.Errorf("appointment %d: %w", appointmentID, model.ErrNotFound)
		}
		if !appt.Status.CanTransitionTo(model.StatusPaid) {
			return fmt.Errorf("cannot move %s to %s: %w", appt.Status, model.StatusPaid, model.ErrInvalidAppointmentStatus)
		}
		if err := s.apptRepo.TransitionStatus(ctx, appointmentID, appt.Status, model.StatusPaid); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("appointment paid", zap.Int64("appointment_id", appointmentID))
	return nil
}

// Release deletes a still-unpaid appointment and flips its ledger entries
// back to unoccupied, making the underlying slots bookable again. A missing
// appointment is a no-op so re-running a sweep is safe; a paid one is refused
// so a payment confirmation racing the sweep wins.
func (s *BookingService) Release(ctx context.Context, appointmentID int64) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		appt, err := s.apptRepo.GetByID(ctx, appointmentID)
		if err != nil {
			return fmt.Errorf("get appointment: %w", err)
		}
		if appt == nil {
			return nil
		}
		if appt.Status != model.StatusPendingPayment {
			return fmt.Errorf("appointment %d is %s: %w", appointmentID, appt.Status, model.ErrInvalidAppointmentStatus)
		}
		if err := s.slotRepo.ReleaseByAppointmentID(ctx, appointmentID); err != nil {
			return fmt.Errorf("release timeslots: %w", err)
		}
		// conditional delete: a payment committing between the read above
		// and this statement fails the release and rolls the slots back
		if err := s.apptRepo.DeletePending(ctx, appointmentID); err != nil {
			return fmt.Errorf("delete appointment: %w", err)
		}
		return nil
	})
}

// SweepExpiredReservations releases every appointment stuck in
// PENDING_PAYMENT past the reservation TTL. Per-appointment failures are
// logged and retried on the next tick rather than aborting the sweep.
func (s *BookingService) SweepExpiredReservations(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.reservationTTL)

	expired, err := s.apptRepo.ListExpiredPending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list expired pending: %w", err)
	}

	released := 0
	for _, appt := range expired {
		if err := s.Release(ctx, appt.ID); err != nil {
			if errors.Is(err, model.ErrInvalidAppointmentStatus) {
				// paid between the scan and the release
				continue
			}
			s.logger.Error("failed to release expired appointment",
				zap.Int64("appointment_id", appt.ID),
				zap.Error(err),
			)
			continue
		}
		released++
	}

	if released > 0 {
		s.logger.Info("expired reservations released",
			zap.Int("count", released),
			zap.Time("cutoff", cutoff),
		)
	}

	return released, nil
}

// GetAppointmentByID returns the appointment with its timeslots loaded.
func (s *BookingService) GetAppointmentByID(ctx context.Context, appointmentID int64) (*model.Appointment, error) {
	appt, err := s.apptRepo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if appt == nil {
		return nil, fmt.Errorf("appointment %d: %w", appointmentID, model.ErrNotFound)
	}
	appt.Timeslots, err = s.slotRepo.GetByAppointmentID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("get timeslots: %w", err)
	}
	return appt, nil
}

// GetAppointmentsByTutor returns a page of the tutor's appointments,
// optionally filtered by status.
func (s *BookingService) GetAppointmentsByTutor(ctx context.Context, tutorID int64, status *model.AppointmentStatus, page PageRequest) (*AppointmentPage, error) {
	items, total, err := s.apptRepo.ListByTutor(ctx, tutorID, status, page)
	if err != nil {
		return nil, fmt.Errorf("list by tutor: %w", err)
	}
	return newAppointmentPage(items, page, total), nil
}

// GetAppointmentsByStudent returns a page of the student's appointments,
// optionally filtered by status.
func (s *BookingService) GetAppointmentsByStudent(ctx context.Context, studentID int64, status *model.AppointmentStatus, page PageRequest) (*AppointmentPage, error) {
	items, total, err := s.apptRepo.ListByStudent(ctx, studentID, status, page)
	if err != nil {
		return nil, fmt.Errorf("list by student: %w", err)
	}
	return newAppointmentPage(items, page, total), nil
}

// GetAppointments returns a page over all appointments, optionally filtered
// by status.
func (s *BookingService) GetAppointments(ctx context.Context, status *model.AppointmentStatus, page PageRequest) (*AppointmentPage, error) {
	items, total, err := s.apptRepo.List(ctx, status, page)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return newAppointmentPage(items, page, total), nil
}
