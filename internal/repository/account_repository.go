package repository

import (
	"context"
	"fmt"

	"github.com/studyroom/tutorbook/internal/model"
	"github.com/studyroom/tutorbook/internal/repository/base"
)

// AccountRepository reads the account directory. The booking core never
// writes accounts; registration lives elsewhere.
type AccountRepository struct {
	db *base.DB
}

func NewAccountRepository(db *base.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetByID returns the account or (nil, nil) when absent.
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	query := `
		SELECT id, role, full_name, hourly_rate, created_at
		FROM accounts
		WHERE id = $1
	`

	var account model.Account
	err := r.db.Querier(ctx).QueryRow(ctx, query, id).Scan(
		&account.ID,
		&account.Role,
		&account.FullName,
		&account.HourlyRate,
		&account.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account by id: %w", err)
	}

	return &account, nil
}
