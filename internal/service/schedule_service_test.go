package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyroom/tutorbook/internal/model"
	"github.com/studyroom/tutorbook/internal/service"
)

func TestSubmitAvailability_PersistsValidRules(t *testing.T) {
	f := newFixture(t)
	tutorID := f.addTutor(20)
	ctx := context.Background()

	result, err := f.schedule.SubmitAvailability(ctx, tutorID, []service.RuleInput{
		in(time.Monday, 540, 660),
		in(time.Wednesday, 840, 900),
	})
	require.NoError(t, err)
	assert.Len(t, result.Accepted, 2)
	assert.Empty(t, result.Rejected)

	// all rules of one submission share a batch id
	assert.Equal(t, result.Accepted[0].BatchID, result.Accepted[1].BatchID)

	rules, err := f.store.Rules().GetByTutorID(ctx, tutorID)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	for _, r := range rules {
		assert.True(t, r.Active)
	}
}

func TestSubmitAvailability_BatchPartiallySucceeds(t *testing.T) {
	f := newFixture(t)
	tutorID := f.addTutor(20)
	ctx := context.Background()

	_, err := f.schedule.SubmitAvailability(ctx, tutorID, []service.RuleInput{
		in(time.Monday, 540, 660),
	})
	require.NoError(t, err)

	result, err := f.schedule.SubmitAvailability(ctx, tutorID, []service.RuleInput{
		in(time.Monday, 600, 720),  // collides with existing Monday rule
		in(time.Monday, 660, 780),  // touches but does not overlap
		in(time.Tuesday, 600, 540), // end before start
		in(time.Friday, 540, 660),
	})
	require.NoError(t, err)

	require.Len(t, result.Accepted, 2)
	require.Len(t, result.Rejected, 2)

	assert.ErrorIs(t, result.Rejected[0].Reason, model.ErrRuleOverlap)
	assert.ErrorIs(t, result.Rejected[1].Reason, model.ErrValidation)

	rules, err := f.store.Rules().GetByTutorID(ctx, tutorID)
	require.NoError(t, err)
	assert.Len(t, rules, 3)
}

func TestSubmitAvailability_RejectsOverlapWithinBatch(t *testing.T) {
	f := newFixture(t)
	tutorID := f.addTutor(20)

	result, err := f.schedule.SubmitAvailability(context.Background(), tutorID, []service.RuleInput{
		in(time.Monday, 540, 660),
		in(time.Monday, 600, 720),
	})
	require.NoError(t, err)

	assert.Len(t, result.Accepted, 1)
	require.Len(t, result.Rejected, 1)
	assert.ErrorIs(t, result.Rejected[0].Reason, model.ErrRuleOverlap)
}

func TestSubmitAvailability_UnknownTutor(t *testing.T) {
	f := newFixture(t)

	_, err := f.schedule.SubmitAvailability(context.Background(), 99, []service.RuleInput{
		in(time.Monday, 540, 660),
	})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestSubmitAvailability_StudentIsNotATutor(t *testing.T) {
	f := newFixture(t)
	studentID := f.addStudent()

	_, err := f.schedule.SubmitAvailability(context.Background(), studentID, []service.RuleInput{
		in(time.Monday, 540, 660),
	})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestGetWeeklyView_SevenBucketsAlwaysPresent(t *testing.T) {
	f := newFixture(t)
	tutorID := f.addTutor(20)
	ctx := context.Background()

	view, err := f.schedule.GetWeeklyView(ctx, tutorID, refDate)
	require.NoError(t, err)

	assert.True(t, view.StartDate.Equal(model.DateOnly(refDate)))
	assert.True(t, view.EndDate.Equal(model.DateOnly(refDate).AddDate(0, 0, 6)))

	for i, day := range view.Days {
		wantDate := model.DateOnly(refDate).AddDate(0, 0, i)
		assert.True(t, wantDate.Equal(day.Date))
		assert.Equal(t, wantDate.Day(), day.DayOfMonth)
		assert.NotNil(t, day.Slots, "empty buckets must not be nil")
		assert.Empty(t, day.Slots)
	}

	// reference is a Wednesday
	assert.Equal(t, "WED", view.Days[0].Weekday)
	assert.Equal(t, "MON", view.Days[5].Weekday)

	// legacy wire numbering: 2=Monday..8=Sunday
	assert.Equal(t, 4, view.Days[0].LegacyDay)
	assert.Equal(t, 8, view.Days[4].LegacyDay)
	assert.Equal(t, 2, view.Days[5].LegacyDay)
}

func TestGetWeeklyView_PlacesRulesByWeekday(t *testing.T) {
	f := newFixture(t)
	tutorID := f.addTutor(20)
	ctx := context.Background()

	_, err := f.schedule.SubmitAvailability(ctx, tutorID, []service.RuleInput{
		in(time.Monday, 540, 660),
		in(time.Wednesday, 840, 900),
		in(time.Wednesday, 600, 660),
	})
	require.NoError(t, err)

	view, err := f.schedule.GetWeeklyView(ctx, tutorID, refDate)
	require.NoError(t, err)

	// Wednesday is bucket 0, Monday bucket 5, ordered by start time
	require.Len(t, view.Days[0].Slots, 2)
	assert.Equal(t, model.MinuteOfDay(600), view.Days[0].Slots[0].Start)
	assert.Equal(t, model.MinuteOfDay(840), view.Days[0].Slots[1].Start)
	require.Len(t, view.Days[5].Slots, 1)
}

func TestGetWeeklyView_Idempotent(t *testing.T) {
	f := newFixture(t)
	tutorID := f.addTutor(20)
	ctx := context.Background()

	_, err := f.schedule.SubmitAvailability(ctx, tutorID, []service.RuleInput{
		in(time.Monday, 540, 660),
		in(time.Saturday, 600, 720),
	})
	require.NoError(t, err)

	first, err := f.schedule.GetWeeklyView(ctx, tutorID, refDate)
	require.NoError(t, err)
	second, err := f.schedule.GetWeeklyView(ctx, tutorID, refDate)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGetWeeklyView_InactiveRuleNeverAppears(t *testing.T) {
	f := newFixture(t)
	tutorID := f.addTutor(20)
	ctx := context.Background()

	result, err := f.schedule.SubmitAvailability(ctx, tutorID, []service.RuleInput{
		in(time.Monday, 540, 660),
	})
	require.NoError(t, err)
	require.NoError(t, f.store.Rules().SetActive(ctx, result.Accepted[0].ID, false))

	view, err := f.schedule.GetWeeklyView(ctx, tutorID, refDate)
	require.NoError(t, err)
	assert.Empty(t, view.Days[5].Slots)
}

func TestUpdateAvailability_DiffsByCompositeKey(t *testing.T) {
	f := newFixture(t)
	tutorID := f.addTutor(20)
	ctx := context.Background()

	_, err := f.schedule.SubmitAvailability(ctx, tutorID, []service.RuleInput{
		in(time.Monday, 540, 660),
		in(time.Tuesday, 540, 660),
	})
	require.NoError(t, err)

	// keep Monday, drop Tuesday, add Friday
	err = f.schedule.UpdateAvailability(ctx, tutorID, []service.RuleInput{
		in(time.Monday, 540, 660),
		in(time.Friday, 600, 720),
	})
	require.NoError(t, err)

	rules, err := f.store.Rules().GetByTutorID(ctx, tutorID)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	keys := map[model.RuleKey]bool{}
	for _, r := range rules {
		keys[r.Key()] = true
		assert.True(t, r.Active)
	}
	assert.True(t, keys[model.RuleKey{Weekday: time.Monday, Start: 540, End: 660}])
	assert.True(t, keys[model.RuleKey{Weekday: time.Friday, Start: 600, End: 720}])
}

func TestUpdateAvailability_DeactivatesRuleWithBookingHistory(t *testing.T) {
	f := newFixture(t)
	tutorID := f.addTutor(20)
	studentID := f.addStudent()
	ctx := context.Background()

	result, err := f.schedule.SubmitAvailability(ctx, tutorID, []service.RuleInput{
		in(time.Monday, 540, 660),
	})
	require.NoError(t, err)
	ruleID := result.Accepted[0].ID

	_, err = f.bookings.CreateAppointment(ctx, studentID, tutorID, "algebra", []int64{ruleID})
	require.NoError(t, err)

	// tutor removes the rule while a timeslot still references it
	err = f.schedule.UpdateAvailability(ctx, tutorID, nil)
	require.NoError(t, err)

	rule, err := f.store.Rules().GetByID(ctx, ruleID)
	require.NoError(t, err)
	require.NotNil(t, rule, "rule with history must be kept")
	assert.False(t, rule.Active)
}

func TestUpdateAvailability_DeletesUnreferencedRule(t *testing.T) {
	f := newFixture(t)
	tutorID := f.addTutor(20)
	ctx := context.Background()

	result, err := f.schedule.SubmitAvailability(ctx, tutorID, []service.RuleInput{
		in(time.Monday, 540, 660),
	})
	require.NoError(t, err)
	ruleID := result.Accepted[0].ID

	err = f.schedule.UpdateAvailability(ctx, tutorID, nil)
	require.NoError(t, err)

	rule, err := f.store.Rules().GetByID(ctx, ruleID)
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestUpdateAvailability_ReactivatesUnchangedRule(t *testing.T) {
	f := newFixture(t)
	tutorID := f.addTutor(20)
	ctx := context.Background()

	result, err := f.schedule.SubmitAvailability(ctx, tutorID, []service.RuleInput{
		in(time.Monday, 540, 660),
	})
	require.NoError(t, err)
	ruleID := result.Accepted[0].ID
	require.NoError(t, f.store.Rules().SetActive(ctx, ruleID, false))

	err = f.schedule.UpdateAvailability(ctx, tutorID, []service.RuleInput{
		in(time.Monday, 540, 660),
	})
	require.NoError(t, err)

	rule, err := f.store.Rules().GetByID(ctx, ruleID)
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.True(t, rule.Active)
}

func TestUpdateAvailability_ReactivationCannotOverlap(t *testing.T) {
	f := newFixture(t)
	tutorID := f.addTutor(20)
	studentID := f.addStudent()
	ctx := context.Background()

	// Monday 10:00-12:00 gets booked, then removed -> deactivated with history
	result, err := f.schedule.SubmitAvailability(ctx, tutorID, []service.RuleInput{
		in(time.Monday, 600, 720),
	})
	require.NoError(t, err)
	bookedRuleID := result.Accepted[0].ID

	_, err = f.bookings.CreateAppointment(ctx, studentID, tutorID, "history", []int64{bookedRuleID})
	require.NoError(t, err)
	require.NoError(t, f.schedule.UpdateAvailability(ctx, tutorID, nil))

	// Monday 09:00-11:00 is fine while the old rule is inactive
	_, err = f.schedule.SubmitAvailability(ctx, tutorID, []service.RuleInput{
		in(time.Monday, 540, 660),
	})
	require.NoError(t, err)

	// naming both keys would reactivate the old rule on top of the new one
	err = f.schedule.UpdateAvailability(ctx, tutorID, []service.RuleInput{
		in(time.Monday, 540, 660),
		in(time.Monday, 600, 720),
	})
	require.ErrorIs(t, err, model.ErrRuleOverlap)

	active, err := f.store.Rules().GetActiveByTutorAndWeekday(ctx, tutorID, time.Monday)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, model.MinuteOfDay(540), active[0].Start)

	old, err := f.store.Rules().GetByID(ctx, bookedRuleID)
	require.NoError(t, err)
	require.NotNil(t, old)
	assert.False(t, old.Active)
}

func TestSubmitAvailability_AcceptsLegacyDayNumbers(t *testing.T) {
	f := newFixture(t)
	tutorID := f.addTutor(20)

	input, err := service.RuleInputFromLegacy(2, 540, 660)
	require.NoError(t, err)

	result, err := f.schedule.SubmitAvailability(context.Background(), tutorID, []service.RuleInput{input})
	require.NoError(t, err)
	require.Len(t, result.Accepted, 1)
	assert.Equal(t, time.Monday, result.Accepted[0].Weekday)

	_, err = service.RuleInputFromLegacy(9, 540, 660)
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestUpdateAvailability_NoActiveOverlapAfterCompletion(t *testing.T) {
	f := newFixture(t)
	tutorID := f.addTutor(20)
	ctx := context.Background()

	_, err := f.schedule.SubmitAvailability(ctx, tutorID, []service.RuleInput{
		in(time.Monday, 540, 660),
	})
	require.NoError(t, err)

	// new set keeps the Monday rule and adds one that overlaps it
	err = f.schedule.UpdateAvailability(ctx, tutorID, []service.RuleInput{
		in(time.Monday, 540, 660),
		in(time.Monday, 600, 720),
	})
	require.ErrorIs(t, err, model.ErrRuleOverlap)

	// failed update must not have written anything
	rules, err := f.store.Rules().GetByTutorID(ctx, tutorID)
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}
