package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MinuteOfDay is a time of day expressed as minutes from midnight, so rule
// arithmetic never depends on time zones or calendar dates.
type MinuteOfDay int

const MinutesPerDay = 24 * 60

func (m MinuteOfDay) Valid() bool {
	return m >= 0 && m <= MinutesPerDay
}

func (m MinuteOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// WeeklyAvailability is a recurring (weekday, time range) slot a tutor
// offers, independent of calendar date. Inactive rules are kept only because
// past bookings still reference them.
type WeeklyAvailability struct {
	ID        int64        `json:"id"`
	TutorID   int64        `json:"tutor_id"`
	BatchID   uuid.UUID    `json:"batch_id"` // shared by rules submitted together
	Weekday   time.Weekday `json:"weekday"`
	Start     MinuteOfDay  `json:"start"`
	End       MinuteOfDay  `json:"end"`
	Active    bool         `json:"active"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// RuleKey is the composite identity used to diff schedule updates. Comparing
// by value avoids the formatting bugs of string-concatenated keys.
type RuleKey struct {
	Weekday time.Weekday
	Start   MinuteOfDay
	End     MinuteOfDay
}

func (w *WeeklyAvailability) Key() RuleKey {
	return RuleKey{Weekday: w.Weekday, Start: w.Start, End: w.End}
}

// Duration returns the slot length.
func (w *WeeklyAvailability) Duration() time.Duration {
	return time.Duration(w.End-w.Start) * time.Minute
}

// Hours returns the billable length in fractional hours.
func (w *WeeklyAvailability) Hours() decimal.Decimal {
	return decimal.NewFromInt(int64(w.End - w.Start)).Div(decimal.NewFromInt(60))
}

// Overlaps reports whether two rules intersect as half-open [start, end)
// intervals on the same weekday.
func (w *WeeklyAvailability) Overlaps(other *WeeklyAvailability) bool {
	if w.Weekday != other.Weekday {
		return false
	}
	return w.Start < other.End && other.Start < w.End
}

// NextOccurrence returns the first date on or after ref that falls on the
// rule's weekday. A rule whose weekday matches ref books ref's own date.
func (w *WeeklyAvailability) NextOccurrence(ref time.Time) time.Time {
	distance := (int(w.Weekday) - int(ref.Weekday()) + 7) % 7
	return DateOnly(ref).AddDate(0, 0, distance)
}

// Legacy wire encoding maps Monday to 2 and Sunday to 8. Everything internal
// uses time.Weekday; convert only at the boundary.

func WeekdayFromLegacy(d int) (time.Weekday, error) {
	if d < 2 || d > 8 {
		return 0, fmt.Errorf("legacy day of week %d out of range [2,8]: %w", d, ErrValidation)
	}
	return time.Weekday((d - 1) % 7), nil
}

func LegacyFromWeekday(w time.Weekday) int {
	if w == time.Sunday {
		return 8
	}
	return int(w) + 1
}

// DateOnly truncates a timestamp to its civil date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
