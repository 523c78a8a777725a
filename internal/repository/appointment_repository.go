package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/studyroom/tutorbook/internal/model"
	"github.com/studyroom/tutorbook/internal/repository/base"
	"github.com/studyroom/tutorbook/internal/service"
)

// AppointmentRepository persists appointments and the scan queries the
// sweeper and listing endpoints run on.
type AppointmentRepository struct {
	db *base.DB
}

func NewAppointmentRepository(db *base.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

// Create inserts an appointment with its computed tuition.
func (r *AppointmentRepository) Create(ctx context.Context, appt *model.Appointment) error {
	query := `
		INSERT INTO appointments (student_id, tutor_id, description, status, tuition, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, updated_at
	`

	err := r.db.Querier(ctx).QueryRow(
		ctx, query,
		appt.StudentID,
		appt.TutorID,
		appt.Description,
		appt.Status,
		appt.Tuition,
		appt.CreatedAt,
	).Scan(&appt.ID, &appt.UpdatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("student %d: %w", appt.StudentID, model.ErrPendingPaymentConflict)
		}
		return fmt.Errorf("create appointment: %w", err)
	}

	return nil
}

// GetByID returns the appointment or (nil, nil) when absent.
func (r *AppointmentRepository) GetByID(ctx context.Context, id int64) (*model.Appointment, error) {
	query := `
		SELECT id, student_id, tutor_id, description, status, tuition, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`

	appt, err := scanAppointment(r.db.Querier(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get appointment by id: %w", err)
	}

	return appt, nil
}

// HasPendingPayment reports whether the student holds an unpaid appointment.
func (r *AppointmentRepository) HasPendingPayment(ctx context.Context, studentID int64) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM appointments
			WHERE student_id = $1 AND status = $2
		)
	`

	var exists bool
	err := r.db.Querier(ctx).QueryRow(ctx, query, studentID, model.StatusPendingPayment).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending payment: %w", err)
	}

	return exists, nil
}

// TransitionStatus writes the new lifecycle state as a single conditional
// UPDATE, so a concurrent transition that committed first fails this one.
func (r *AppointmentRepository) TransitionStatus(ctx context.Context, id int64, from, to model.AppointmentStatus) error {
	query := `
		UPDATE appointments
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`

	tag, err := r.db.Querier(ctx).Exec(ctx, query, to, id, from)
	if err != nil {
		return fmt.Errorf("transition appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointment %d is not %s: %w", id, from, model.ErrInvalidAppointmentStatus)
	}

	return nil
}

// DeletePending removes the appointment row only while it is still unpaid.
func (r *AppointmentRepository) DeletePending(ctx context.Context, id int64) error {
	query := `DELETE FROM appointments WHERE id = $1 AND status = $2`

	tag, err := r.db.Querier(ctx).Exec(ctx, query, id, model.StatusPendingPayment)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointment %d is not %s: %w", id, model.StatusPendingPayment, model.ErrInvalidAppointmentStatus)
	}

	return nil
}

// ListExpiredPending returns unpaid appointments created before the cutoff.
func (r *AppointmentRepository) ListExpiredPending(ctx context.Context, cutoff time.Time) ([]*model.Appointment, error) {
	query := `
		SELECT id, student_id, tutor_id, description, status, tuition, created_at, updated_at
		FROM appointments
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
	`

	rows, err := r.db.Querier(ctx).Query(ctx, query, model.StatusPendingPayment, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list expired pending: %w", err)
	}
	defer rows.Close()

	return collectAppointments(rows)
}

// ListByTutor returns a page of the tutor's appointments plus the total row
// count, optionally filtered by status.
func (r *AppointmentRepository) ListByTutor(ctx context.Context, tutorID int64, status *model.AppointmentStatus, page service.PageRequest) ([]*model.Appointment, int64, error) {
	return r.list(ctx, "tutor_id = $1", tutorID, status, page)
}

// ListByStudent returns a page of the student's appointments plus the total
// row count, optionally filtered by status.
func (r *AppointmentRepository) ListByStudent(ctx context.Context, studentID int64, status *model.AppointmentStatus, page service.PageRequest) ([]*model.Appointment, int64, error) {
	return r.list(ctx, "student_id = $1", studentID, status, page)
}

// List returns a page over all appointments, optionally filtered by status.
func (r *AppointmentRepository) List(ctx context.Context, status *model.AppointmentStatus, page service.PageRequest) ([]*model.Appointment, int64, error) {
	where := "TRUE"
	args := []any{}
	if status != nil {
		where = "status = $1"
		args = append(args, *status)
	}
	return r.listWhere(ctx, where, args, page)
}

func (r *AppointmentRepository) list(ctx context.Context, ownerCond string, ownerID int64, status *model.AppointmentStatus, page service.PageRequest) ([]*model.Appointment, int64, error) {
	where := ownerCond
	args := []any{ownerID}
	if status != nil {
		where += " AND status = $2"
		args = append(args, *status)
	}
	return r.listWhere(ctx, where, args, page)
}

func (r *AppointmentRepository) listWhere(ctx context.Context, where string, args []any, page service.PageRequest) ([]*model.Appointment, int64, error) {
	countQuery := `SELECT count(*) FROM appointments WHERE ` + where

	var total int64
	if err := r.db.Querier(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, student_id, tutor_id, description, status, tuition, created_at, updated_at
		FROM appointments
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, page.Size, page.Offset())

	rows, err := r.db.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	items, err := collectAppointments(rows)
	if err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

func scanAppointment(row rowScanner) (*model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.StudentID,
		&appt.TutorID,
		&appt.Description,
		&appt.Status,
		&appt.Tuition,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

type rowsScanner interface {
	rowScanner
	Next() bool
	Err() error
}

func collectAppointments(rows rowsScanner) ([]*model.Appointment, error) {
	var appts []*model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}
