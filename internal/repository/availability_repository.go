package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/studyroom/tutorbook/internal/model"
	"github.com/studyroom/tutorbook/internal/repository/base"
)

// AvailabilityRepository manages recurring weekly rules.
type AvailabilityRepository struct {
	db *base.DB
}

func NewAvailabilityRepository(db *base.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

// Create inserts a new rule.
func (r *AvailabilityRepository) Create(ctx context.Context, rule *model.WeeklyAvailability) error {
	query := `
		INSERT INTO weekly_availabilities (tutor_id, batch_id, weekday, start_min, end_min, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.Querier(ctx).QueryRow(
		ctx, query,
		rule.TutorID,
		rule.BatchID,
		int(rule.Weekday),
		int(rule.Start),
		int(rule.End),
		rule.Active,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}

	return nil
}

// GetByID returns the rule or (nil, nil) when absent.
func (r *AvailabilityRepository) GetByID(ctx context.Context, id int64) (*model.WeeklyAvailability, error) {
	query := `
		SELECT id, tutor_id, batch_id, weekday, start_min, end_min, active, created_at, updated_at
		FROM weekly_availabilities
		WHERE id = $1
	`

	rule, err := scanRule(r.db.Querier(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get rule by id: %w", err)
	}

	return rule, nil
}

// GetByTutorID returns all rules of a tutor, active and retired.
func (r *AvailabilityRepository) GetByTutorID(ctx context.Context, tutorID int64) ([]*model.WeeklyAvailability, error) {
	query := `
		SELECT id, tutor_id, batch_id, weekday, start_min, end_min, active, created_at, updated_at
		FROM weekly_availabilities
		WHERE tutor_id = $1
		ORDER BY weekday, start_min
	`

	rows, err := r.db.Querier(ctx).Query(ctx, query, tutorID)
	if err != nil {
		return nil, fmt.Errorf("get rules by tutor: %w", err)
	}
	defer rows.Close()

	var rules []*model.WeeklyAvailability
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// GetActiveByTutorAndWeekday returns the tutor's active rules for one
// weekday, ordered by start time.
func (r *AvailabilityRepository) GetActiveByTutorAndWeekday(ctx context.Context, tutorID int64, weekday time.Weekday) ([]*model.WeeklyAvailability, error) {
	query := `
		SELECT id, tutor_id, batch_id, weekday, start_min, end_min, active, created_at, updated_at
		FROM weekly_availabilities
		WHERE tutor_id = $1 AND weekday = $2 AND active
		ORDER BY start_min
	`

	rows, err := r.db.Querier(ctx).Query(ctx, query, tutorID, int(weekday))
	if err != nil {
		return nil, fmt.Errorf("get active rules: %w", err)
	}
	defer rows.Close()

	var rules []*model.WeeklyAvailability
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}

// SetActive flips the active flag.
func (r *AvailabilityRepository) SetActive(ctx context.Context, id int64, active bool) error {
	query := `
		UPDATE weekly_availabilities
		SET active = $1, updated_at = now()
		WHERE id = $2
	`

	tag, err := r.db.Querier(ctx).Exec(ctx, query, active, id)
	if err != nil {
		return fmt.Errorf("set rule active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %d: %w", id, model.ErrNotFound)
	}

	return nil
}

// Delete removes a rule. Only rules with no ledger history may be deleted.
func (r *AvailabilityRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM weekly_availabilities WHERE id = $1`

	tag, err := r.db.Querier(ctx).Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %d: %w", id, model.ErrNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*model.WeeklyAvailability, error) {
	var (
		rule     model.WeeklyAvailability
		weekday  int
		startMin int
		endMin   int
	)
	err := row.Scan(
		&rule.ID,
		&rule.TutorID,
		&rule.BatchID,
		&weekday,
		&startMin,
		&endMin,
		&rule.Active,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rule.Weekday = time.Weekday(weekday)
	rule.Start = model.MinuteOfDay(startMin)
	rule.End = model.MinuteOfDay(endMin)
	return &rule, nil
}
