package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
)

// Account is a directory entry for a marketplace member. Tutors carry an
// hourly teaching rate used to price appointments.
type Account struct {
	ID         int64           `json:"id"`
	Role       Role            `json:"role"`
	FullName   string          `json:"full_name"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	CreatedAt  time.Time       `json:"created_at"`
}

// IsTutor checks if the account can publish availability and be booked.
func (a *Account) IsTutor() bool {
	return a.Role == RoleTutor
}
