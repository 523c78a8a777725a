package model

import "time"

// Timeslot is a ledger entry: one dated instantiation of a weekly rule,
// created only when a booking claims it. Virtual slots shown in the weekly
// view never touch the ledger. The appointment back-reference exists for
// lookup; ownership always runs appointment -> timeslots.
type Timeslot struct {
	ID            int64     `json:"id"`
	RuleID        int64     `json:"rule_id"`
	Date          time.Time `json:"date"` // civil date, UTC midnight
	Occupied      bool      `json:"occupied"`
	AppointmentID *int64    `json:"appointment_id"`
	CreatedAt     time.Time `json:"created_at"`
}
