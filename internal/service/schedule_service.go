package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyroom/tutorbook/internal/model"
)

// RuleInput is one candidate weekly rule in a schedule submission.
type RuleInput struct {
	Weekday time.Weekday      `json:"weekday" validate:"min=0,max=6"`
	Start   model.MinuteOfDay `json:"start" validate:"min=0,lt=1440"`
	End     model.MinuteOfDay `json:"end" validate:"min=1,max=1440"`
}

// RuleInputFromLegacy builds a RuleInput from the 2=Monday..8=Sunday day
// numbering some callers still speak on the wire.
func RuleInputFromLegacy(day int, start, end model.MinuteOfDay) (RuleInput, error) {
	weekday, err := model.WeekdayFromLegacy(day)
	if err != nil {
		return RuleInput{}, err
	}
	return RuleInput{Weekday: weekday, Start: start, End: end}, nil
}

// RuleRejection is a per-item failure from a batch submission. Reason wraps
// model.ErrRuleOverlap or model.ErrValidation.
type RuleRejection struct {
	Input  RuleInput `json:"input"`
	Reason error     `json:"reason"`
}

// SubmitResult reports a partially successful batch: valid rules persisted,
// colliding or malformed ones returned to the caller.
type SubmitResult struct {
	Accepted []*model.WeeklyAvailability `json:"accepted"`
	Rejected []RuleRejection             `json:"rejected"`
}

// DayBucket is one day of the weekly view. Slots holds the rules still
// bookable on that date, ordered by start time. Never nil.
type DayBucket struct {
	Date       time.Time                   `json:"date"`
	Weekday    string                      `json:"weekday"`    // "MON".."SUN"
	LegacyDay  int                         `json:"legacy_day"` // 2=Monday..8=Sunday wire numbering
	DayOfMonth int                         `json:"day_of_month"`
	Slots      []*model.WeeklyAvailability `json:"slots"`
}

// WeeklyView is a lazy read-only projection of a tutor's schedule over seven
// days. Viewing it writes nothing to the ledger.
type WeeklyView struct {
	TutorID   int64        `json:"tutor_id"`
	StartDate time.Time    `json:"start_date"`
	EndDate   time.Time    `json:"end_date"`
	Days      [7]DayBucket `json:"days"`
}

// ScheduleService manages recurring weekly availability and projects it onto
// concrete dates.
type ScheduleService struct {
	accountRepo AccountRepository
	ruleRepo    AvailabilityRepository
	slotRepo    TimeslotRepository
	tx          TxRunner
	clock       Clock
	validate    *validator.Validate
	logger      *zap.Logger
}

func NewScheduleService(
	accountRepo AccountRepository,
	ruleRepo AvailabilityRepository,
	slotRepo TimeslotRepository,
	tx TxRunner,
	clock Clock,
	logger *zap.Logger,
) *ScheduleService {
	return &ScheduleService{
		accountRepo: accountRepo,
		ruleRepo:    ruleRepo,
		slotRepo:    slotRepo,
		tx:          tx,
		clock:       clock,
		validate:    validator.New(),
		logger:      logger,
	}
}

// SubmitAvailability persists the valid, non-overlapping rules of a batch
// and returns the rest as rejections. All accepted rules share one batch ID.
func (s *ScheduleService) SubmitAvailability(ctx context.Context, tutorID int64, inputs []RuleInput) (*SubmitResult, error) {
	if err := s.requireTutor(ctx, tutorID); err != nil {
		return nil, err
	}

	result := &SubmitResult{}
	batchID := uuid.New()

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.ruleRepo.GetByTutorID(ctx, tutorID)
		if err != nil {
			return fmt.Errorf("get rules by tutor: %w", err)
		}

		active := make([]*model.WeeklyAvailability, 0, len(existing))
		for _, r := range existing {
			if r.Active {
				active = append(active, r)
			}
		}

		for _, in := range inputs {
			if err := s.validateRule(in); err != nil {
				result.Rejected = append(result.Rejected, RuleRejection{Input: in, Reason: err})
				continue
			}

			rule := &model.WeeklyAvailability{
				TutorID: tutorID,
				BatchID: batchID,
				Weekday: in.Weekday,
				Start:   in.Start,
				End:     in.End,
				Active:  true,
			}

			if overlapsAny(rule, active) {
				result.Rejected = append(result.Rejected, RuleRejection{Input: in, Reason: model.ErrRuleOverlap})
				continue
			}

			if err := s.ruleRepo.Create(ctx, rule); err != nil {
				return fmt.Errorf("create rule: %w", err)
			}
			// accepted rules constrain the rest of the batch too
			active = append(active, rule)
			result.Accepted = append(result.Accepted, rule)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("availability submitted",
		zap.Int64("tutor_id", tutorID),
		zap.String("batch_id", batchID.String()),
		zap.Int("accepted", len(result.Accepted)),
		zap.Int("rejected", len(result.Rejected)),
	)

	return result, nil
}

// UpdateAvailability replaces a tutor's schedule with newRules, diffing by
// the (weekday, start, end) composite key. New keys are added, missing keys
// are deactivated when booked history references them and deleted otherwise,
// unchanged keys are kept active. Every rule the final set activates passes
// the same overlap check, including kept rules that were deactivated earlier.
func (s *ScheduleService) UpdateAvailability(ctx context.Context, tutorID int64, newRules []RuleInput) error {
	if err := s.requireTutor(ctx, tutorID); err != nil {
		return err
	}

	for _, in := range newRules {
		if err := s.validateRule(in); err != nil {
			return fmt.Errorf("rule %v %s-%s: %w", in.Weekday, in.Start, in.End, err)
		}
	}

	newByKey := make(map[model.RuleKey]RuleInput, len(newRules))
	for _, in := range newRules {
		newByKey[model.RuleKey{Weekday: in.Weekday, Start: in.Start, End: in.End}] = in
	}

	var added, reactivated, deactivated, deleted int

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.ruleRepo.GetByTutorID(ctx, tutorID)
		if err != nil {
			return fmt.Errorf("get rules by tutor: %w", err)
		}

		existingByKey := make(map[model.RuleKey]*model.WeeklyAvailability, len(existing))
		for _, r := range existing {
			existingByKey[r.Key()] = r
		}

		// every kept rule ends up active, so the overlap check accumulates
		// over them as rules are reactivated and added
		active := make([]*model.WeeklyAvailability, 0, len(newRules))
		for _, r := range existing {
			if _, keep := newByKey[r.Key()]; keep && r.Active {
				active = append(active, r)
			}
		}

		for _, r := range existing {
			if _, keep := newByKey[r.Key()]; !keep || r.Active {
				continue
			}
			if overlapsAny(r, active) {
				return fmt.Errorf("rule %v %s-%s: %w", r.Weekday, r.Start, r.End, model.ErrRuleOverlap)
			}
			if err := s.ruleRepo.SetActive(ctx, r.ID, true); err != nil {
				return fmt.Errorf("reactivate rule: %w", err)
			}
			active = append(active, r)
			reactivated++
		}

		batchID := uuid.New()
		for key, in := range newByKey {
			if _, ok := existingByKey[key]; ok {
				continue
			}
			rule := &model.WeeklyAvailability{
				TutorID: tutorID,
				BatchID: batchID,
				Weekday: in.Weekday,
				Start:   in.Start,
				End:     in.End,
				Active:  true,
			}
			if overlapsAny(rule, active) {
				return fmt.Errorf("rule %v %s-%s: %w", in.Weekday, in.Start, in.End, model.ErrRuleOverlap)
			}
			if err := s.ruleRepo.Create(ctx, rule); err != nil {
				return fmt.Errorf("create rule: %w", err)
			}
			active = append(active, rule)
			added++
		}

		for key, rule := range existingByKey {
			if _, keep := newByKey[key]; keep {
				continue
			}
			referenced, err := s.slotRepo.HasAnyForRule(ctx, rule.ID)
			if err != nil {
				return fmt.Errorf("check rule history: %w", err)
			}
			if referenced {
				if err := s.ruleRepo.SetActive(ctx, rule.ID, false); err != nil {
					return fmt.Errorf("deactivate rule: %w", err)
				}
				deactivated++
			} else {
				if err := s.ruleRepo.Delete(ctx, rule.ID); err != nil {
					return fmt.Errorf("delete rule: %w", err)
				}
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("availability updated",
		zap.Int64("tutor_id", tutorID),
		zap.Int("added", added),
		zap.Int("reactivated", reactivated),
		zap.Int("deactivated", deactivated),
		zap.Int("deleted", deleted),
	)

	return nil
}

// GetWeeklyView expands the tutor's active rules onto the seven days starting
// at reference, filtering out dates already claimed in the ledger. All seven
// buckets are present even when empty.
func (s *ScheduleService) GetWeeklyView(ctx context.Context, tutorID int64, reference time.Time) (*WeeklyView, error) {
	if err := s.requireTutor(ctx, tutorID); err != nil {
		return nil, err
	}

	start := model.DateOnly(reference)
	view := &WeeklyView{
		TutorID:   tutorID,
		StartDate: start,
		EndDate:   start.AddDate(0, 0, 6),
	}

	for i := 0; i < 7; i++ {
		date := start.AddDate(0, 0, i)

		rules, err := s.ruleRepo.GetActiveByTutorAndWeekday(ctx, tutorID, date.Weekday())
		if err != nil {
			return nil, fmt.Errorf("get rules for %s: %w", date.Weekday(), err)
		}

		free := make([]*model.WeeklyAvailability, 0, len(rules))
		for _, rule := range rules {
			occupied, err := s.slotRepo.FindOccupied(ctx, rule.ID, date)
			if err != nil {
				return nil, fmt.Errorf("check ledger: %w", err)
			}
			if occupied == nil {
				free = append(free, rule)
			}
		}
		sort.Slice(free, func(a, b int) bool { return free[a].Start < free[b].Start })

		view.Days[i] = DayBucket{
			Date:       date,
			Weekday:    strings.ToUpper(date.Weekday().String()[:3]),
			LegacyDay:  model.LegacyFromWeekday(date.Weekday()),
			DayOfMonth: date.Day(),
			Slots:      free,
		}
	}

	return view, nil
}

func (s *ScheduleService) requireTutor(ctx context.Context, tutorID int64) error {
	account, err := s.accountRepo.GetByID(ctx, tutorID)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if account == nil || !account.IsTutor() {
		return fmt.Errorf("tutor %d: %w", tutorID, model.ErrNotFound)
	}
	return nil
}

func (s *ScheduleService) validateRule(in RuleInput) error {
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%s: %w", err, model.ErrValidation)
	}
	if in.End <= in.Start {
		return fmt.Errorf("end %s not after start %s: %w", in.End, in.Start, model.ErrValidation)
	}
	return nil
}

func overlapsAny(rule *model.WeeklyAvailability, others []*model.WeeklyAvailability) bool {
	for _, other := range others {
		if rule.Overlaps(other) {
			return true
		}
	}
	return false
}
