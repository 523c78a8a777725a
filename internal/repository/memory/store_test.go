package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyroom/tutorbook/internal/model"
)

func TestWithinTx_RollsBackOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	rule := &model.WeeklyAvailability{TutorID: 1, Weekday: time.Monday, Start: 540, End: 660, Active: true}
	require.NoError(t, store.Rules().Create(ctx, rule))

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context) error {
		if err := store.Rules().Create(ctx, &model.WeeklyAvailability{TutorID: 1, Weekday: time.Tuesday, Start: 540, End: 660, Active: true}); err != nil {
			return err
		}
		if err := store.Rules().Delete(ctx, rule.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// everything the unit wrote is undone
	got, err := store.Rules().GetByTutorID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rule.ID, got[0].ID)
	assert.Equal(t, time.Monday, got[0].Weekday)
}

func TestWithinTx_CommitsOnSuccess(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context) error {
		return store.Rules().Create(ctx, &model.WeeklyAvailability{TutorID: 1, Weekday: time.Friday, Start: 600, End: 720, Active: true})
	})
	require.NoError(t, err)

	got, err := store.Rules().GetByTutorID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestReserve_RejectsSecondOccupiedEntry(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	date := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Timeslots().Reserve(ctx, &model.Timeslot{RuleID: 7, Date: date, Occupied: true}))

	err := store.Timeslots().Reserve(ctx, &model.Timeslot{RuleID: 7, Date: date, Occupied: true})
	require.ErrorIs(t, err, model.ErrTimeslotConflict)

	// a released entry does not block a new reservation
	require.NoError(t, store.Timeslots().Reserve(ctx, &model.Timeslot{RuleID: 8, Date: date, Occupied: true}))
}
