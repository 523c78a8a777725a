package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/studyroom/tutorbook/internal/model"
	"github.com/studyroom/tutorbook/internal/repository/base"
)

// TimeslotRepository is the ledger of claimed (rule, date) pairs. A partial
// unique index on (rule_id, slot_date) WHERE occupied makes double
// reservation impossible at the storage level, whichever caller loses the
// race.
type TimeslotRepository struct {
	db *base.DB
}

func NewTimeslotRepository(db *base.DB) *TimeslotRepository {
	return &TimeslotRepository{db: db}
}

// Reserve inserts an occupied ledger entry. A unique violation on the
// occupied index surfaces as model.ErrTimeslotConflict.
func (r *TimeslotRepository) Reserve(ctx context.Context, slot *model.Timeslot) error {
	query := `
		INSERT INTO timeslots (rule_id, slot_date, occupied, appointment_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.Querier(ctx).QueryRow(
		ctx, query,
		slot.RuleID,
		slot.Date,
		slot.Occupied,
		slot.AppointmentID,
	).Scan(&slot.ID, &slot.CreatedAt)

	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("rule %d on %s: %w", slot.RuleID, slot.Date.Format("2006-01-02"), model.ErrTimeslotConflict)
		}
		return fmt.Errorf("reserve timeslot: %w", err)
	}

	return nil
}

// FindOccupied returns the occupied entry for (rule, date) or (nil, nil).
func (r *TimeslotRepository) FindOccupied(ctx context.Context, ruleID int64, date time.Time) (*model.Timeslot, error) {
	query := `
		SELECT id, rule_id, slot_date, occupied, appointment_id, created_at
		FROM timeslots
		WHERE rule_id = $1 AND slot_date = $2 AND occupied
	`

	slot, err := scanTimeslot(r.db.Querier(ctx).QueryRow(ctx, query, ruleID, model.DateOnly(date)))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find occupied timeslot: %w", err)
	}

	return slot, nil
}

// GetByAppointmentID returns an appointment's ledger entries ordered by date.
func (r *TimeslotRepository) GetByAppointmentID(ctx context.Context, appointmentID int64) ([]*model.Timeslot, error) {
	query := `
		SELECT id, rule_id, slot_date, occupied, appointment_id, created_at
		FROM timeslots
		WHERE appointment_id = $1
		ORDER BY slot_date
	`

	rows, err := r.db.Querier(ctx).Query(ctx, query, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("get timeslots by appointment: %w", err)
	}
	defer rows.Close()

	var slots []*model.Timeslot
	for rows.Next() {
		slot, err := scanTimeslot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timeslot: %w", err)
		}
		slots = append(slots, slot)
	}

	return slots, rows.Err()
}

// HasAnyForRule reports whether any ledger entry references the rule.
func (r *TimeslotRepository) HasAnyForRule(ctx context.Context, ruleID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM timeslots WHERE rule_id = $1)`

	var exists bool
	if err := r.db.Querier(ctx).QueryRow(ctx, query, ruleID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check rule history: %w", err)
	}

	return exists, nil
}

// ReleaseByAppointmentID frees the appointment's entries without deleting
// them, keeping the booking history attached to the rule.
func (r *TimeslotRepository) ReleaseByAppointmentID(ctx context.Context, appointmentID int64) error {
	query := `
		UPDATE timeslots
		SET occupied = false
		WHERE appointment_id = $1
	`

	if _, err := r.db.Querier(ctx).Exec(ctx, query, appointmentID); err != nil {
		return fmt.Errorf("release timeslots: %w", err)
	}

	return nil
}

func scanTimeslot(row rowScanner) (*model.Timeslot, error) {
	var slot model.Timeslot
	err := row.Scan(
		&slot.ID,
		&slot.RuleID,
		&slot.Date,
		&slot.Occupied,
		&slot.AppointmentID,
		&slot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	slot.Date = model.DateOnly(slot.Date)
	return &slot, nil
}
