// Package memory is an in-process implementation of the service repository
// contracts. It backs deterministic tests; transactions are serialized and
// rolled back by snapshot, which yields the same observable atomicity as the
// Postgres implementation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/studyroom/tutorbook/internal/model"
	"github.com/studyroom/tutorbook/internal/service"
)

type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex // serializes WithinTx units

	accounts map[int64]*model.Account
	rules    map[int64]*model.WeeklyAvailability
	slots    map[int64]*model.Timeslot
	appts    map[int64]*model.Appointment

	nextAccountID int64
	nextRuleID    int64
	nextSlotID    int64
	nextApptID    int64
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[int64]*model.Account),
		rules:    make(map[int64]*model.WeeklyAvailability),
		slots:    make(map[int64]*model.Timeslot),
		appts:    make(map[int64]*model.Appointment),
	}
}

// WithinTx runs fn as one serialized unit. On error every write fn made is
// undone by restoring a snapshot taken at entry.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	accounts map[int64]*model.Account
	rules    map[int64]*model.WeeklyAvailability
	slots    map[int64]*model.Timeslot
	appts    map[int64]*model.Appointment
	ids      [4]int64
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := snapshot{
		accounts: make(map[int64]*model.Account, len(s.accounts)),
		rules:    make(map[int64]*model.WeeklyAvailability, len(s.rules)),
		slots:    make(map[int64]*model.Timeslot, len(s.slots)),
		appts:    make(map[int64]*model.Appointment, len(s.appts)),
		ids:      [4]int64{s.nextAccountID, s.nextRuleID, s.nextSlotID, s.nextApptID},
	}
	for id, a := range s.accounts {
		snap.accounts[id] = copyAccount(a)
	}
	for id, r := range s.rules {
		snap.rules[id] = copyRule(r)
	}
	for id, t := range s.slots {
		snap.slots[id] = copyTimeslot(t)
	}
	for id, a := range s.appts {
		snap.appts[id] = copyAppointment(a)
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = snap.accounts
	s.rules = snap.rules
	s.slots = snap.slots
	s.appts = snap.appts
	s.nextAccountID = snap.ids[0]
	s.nextRuleID = snap.ids[1]
	s.nextSlotID = snap.ids[2]
	s.nextApptID = snap.ids[3]
}

// --- accounts -------------------------------------------------------------

// PutAccount seeds a directory entry, assigning an ID when absent.
func (s *Store) PutAccount(account *model.Account) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if account.ID == 0 {
		s.nextAccountID++
		account.ID = s.nextAccountID
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	s.accounts[account.ID] = copyAccount(account)
	return account.ID
}

func (s *Store) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	return copyAccount(account), nil
}

// Accounts exposes the store as the account directory interface.
func (s *Store) Accounts() service.AccountRepository { return s }

// --- weekly availability rules --------------------------------------------

type RuleStore struct{ s *Store }

func (s *Store) Rules() *RuleStore { return &RuleStore{s: s} }

func (r *RuleStore) Create(ctx context.Context, rule *model.WeeklyAvailability) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextRuleID++
	rule.ID = r.s.nextRuleID
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	r.s.rules[rule.ID] = copyRule(rule)
	return nil
}

func (r *RuleStore) GetByID(ctx context.Context, id int64) (*model.WeeklyAvailability, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rule, ok := r.s.rules[id]
	if !ok {
		return nil, nil
	}
	return copyRule(rule), nil
}

func (r *RuleStore) GetByTutorID(ctx context.Context, tutorID int64) ([]*model.WeeklyAvailability, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var rules []*model.WeeklyAvailability
	for _, rule := range r.s.rules {
		if rule.TutorID == tutorID {
			rules = append(rules, copyRule(rule))
		}
	}
	sortRules(rules)
	return rules, nil
}

func (r *RuleStore) GetActiveByTutorAndWeekday(ctx context.Context, tutorID int64, weekday time.Weekday) ([]*model.WeeklyAvailability, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var rules []*model.WeeklyAvailability
	for _, rule := range r.s.rules {
		if rule.TutorID == tutorID && rule.Weekday == weekday && rule.Active {
			rules = append(rules, copyRule(rule))
		}
	}
	sortRules(rules)
	return rules, nil
}

func (r *RuleStore) SetActive(ctx context.Context, id int64, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rule, ok := r.s.rules[id]
	if !ok {
		return fmt.Errorf("rule %d: %w", id, model.ErrNotFound)
	}
	rule.Active = active
	rule.UpdatedAt = time.Now()
	return nil
}

func (r *RuleStore) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.rules[id]; !ok {
		return fmt.Errorf("rule %d: %w", id, model.ErrNotFound)
	}
	delete(r.s.rules, id)
	return nil
}

// --- timeslot ledger ------------------------------------------------------

type TimeslotStore struct{ s *Store }

func (s *Store) Timeslots() *TimeslotStore { return &TimeslotStore{s: s} }

func (t *TimeslotStore) Reserve(ctx context.Context, slot *model.Timeslot) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	date := model.DateOnly(slot.Date)
	for _, existing := range t.s.slots {
		if existing.RuleID == slot.RuleID && existing.Occupied && existing.Date.Equal(date) {
			return fmt.Errorf("rule %d on %s: %w", slot.RuleID, date.Format("2006-01-02"), model.ErrTimeslotConflict)
		}
	}

	t.s.nextSlotID++
	slot.ID = t.s.nextSlotID
	slot.Date = date
	slot.CreatedAt = time.Now()
	t.s.slots[slot.ID] = copyTimeslot(slot)
	return nil
}

func (t *TimeslotStore) FindOccupied(ctx context.Context, ruleID int64, date time.Time) (*model.Timeslot, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	day := model.DateOnly(date)
	for _, slot := range t.s.slots {
		if slot.RuleID == ruleID && slot.Occupied && slot.Date.Equal(day) {
			return copyTimeslot(slot), nil
		}
	}
	return nil, nil
}

func (t *TimeslotStore) GetByAppointmentID(ctx context.Context, appointmentID int64) ([]*model.Timeslot, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	var slots []*model.Timeslot
	for _, slot := range t.s.slots {
		if slot.AppointmentID != nil && *slot.AppointmentID == appointmentID {
			slots = append(slots, copyTimeslot(slot))
		}
	}
	sort.Slice(slots, func(a, b int) bool { return slots[a].Date.Before(slots[b].Date) })
	return slots, nil
}

func (t *TimeslotStore) HasAnyForRule(ctx context.Context, ruleID int64) (bool, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()

	for _, slot := range t.s.slots {
		if slot.RuleID == ruleID {
			return true, nil
		}
	}
	return false, nil
}

func (t *TimeslotStore) ReleaseByAppointmentID(ctx context.Context, appointmentID int64) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for _, slot := range t.s.slots {
		if slot.AppointmentID != nil && *slot.AppointmentID == appointmentID {
			slot.Occupied = false
		}
	}
	return nil
}

// --- appointments ---------------------------------------------------------

type AppointmentStore struct{ s *Store }

func (s *Store) Appointments() *AppointmentStore { return &AppointmentStore{s: s} }

func (a *AppointmentStore) Create(ctx context.Context, appt *model.Appointment) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	// mirrors the partial unique index on (student_id) WHERE pending
	if appt.Status == model.StatusPendingPayment {
		for _, existing := range a.s.appts {
			if existing.StudentID == appt.StudentID && existing.Status == model.StatusPendingPayment {
				return fmt.Errorf("student %d: %w", appt.StudentID, model.ErrPendingPaymentConflict)
			}
		}
	}

	a.s.nextApptID++
	appt.ID = a.s.nextApptID
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now()
	}
	appt.UpdatedAt = appt.CreatedAt
	a.s.appts[appt.ID] = copyAppointment(appt)
	return nil
}

func (a *AppointmentStore) GetByID(ctx context.Context, id int64) (*model.Appointment, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	appt, ok := a.s.appts[id]
	if !ok {
		return nil, nil
	}
	return copyAppointment(appt), nil
}

func (a *AppointmentStore) HasPendingPayment(ctx context.Context, studentID int64) (bool, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	for _, appt := range a.s.appts {
		if appt.StudentID == studentID && appt.Status == model.StatusPendingPayment {
			return true, nil
		}
	}
	return false, nil
}

func (a *AppointmentStore) TransitionStatus(ctx context.Context, id int64, from, to model.AppointmentStatus) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	appt, ok := a.s.appts[id]
	if !ok || appt.Status != from {
		return fmt.Errorf("appointment %d is not %s: %w", id, from, model.ErrInvalidAppointmentStatus)
	}
	appt.Status = to
	appt.UpdatedAt = time.Now()
	return nil
}

func (a *AppointmentStore) DeletePending(ctx context.Context, id int64) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	appt, ok := a.s.appts[id]
	if !ok || appt.Status != model.StatusPendingPayment {
		return fmt.Errorf("appointment %d is not %s: %w", id, model.StatusPendingPayment, model.ErrInvalidAppointmentStatus)
	}
	delete(a.s.appts, id)
	// detach ledger history, as the schema's ON DELETE SET NULL does
	for _, slot := range a.s.slots {
		if slot.AppointmentID != nil && *slot.AppointmentID == id {
			slot.AppointmentID = nil
		}
	}
	return nil
}

func (a *AppointmentStore) ListExpiredPending(ctx context.Context, cutoff time.Time) ([]*model.Appointment, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	var appts []*model.Appointment
	for _, appt := range a.s.appts {
		if appt.Status == model.StatusPendingPayment && appt.CreatedAt.Before(cutoff) {
			appts = append(appts, copyAppointment(appt))
		}
	}
	sort.Slice(appts, func(i, j int) bool { return appts[i].CreatedAt.Before(appts[j].CreatedAt) })
	return appts, nil
}

func (a *AppointmentStore) ListByTutor(ctx context.Context, tutorID int64, status *model.AppointmentStatus, page service.PageRequest) ([]*model.Appointment, int64, error) {
	return a.listMatching(func(appt *model.Appointment) bool { return appt.TutorID == tutorID }, status, page)
}

func (a *AppointmentStore) ListByStudent(ctx context.Context, studentID int64, status *model.AppointmentStatus, page service.PageRequest) ([]*model.Appointment, int64, error) {
	return a.listMatching(func(appt *model.Appointment) bool { return appt.StudentID == studentID }, status, page)
}

func (a *AppointmentStore) List(ctx context.Context, status *model.AppointmentStatus, page service.PageRequest) ([]*model.Appointment, int64, error) {
	return a.listMatching(func(*model.Appointment) bool { return true }, status, page)
}

func (a *AppointmentStore) listMatching(match func(*model.Appointment) bool, status *model.AppointmentStatus, page service.PageRequest) ([]*model.Appointment, int64, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	var all []*model.Appointment
	for _, appt := range a.s.appts {
		if !match(appt) {
			continue
		}
		if status != nil && appt.Status != *status {
			continue
		}
		all = append(all, copyAppointment(appt))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	total := int64(len(all))
	start := page.Offset()
	if start >= len(all) {
		return nil, total, nil
	}
	end := start + page.Size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

// --- copy helpers ---------------------------------------------------------

func copyAccount(a *model.Account) *model.Account {
	c := *a
	return &c
}

func copyRule(r *model.WeeklyAvailability) *model.WeeklyAvailability {
	c := *r
	return &c
}

func copyTimeslot(t *model.Timeslot) *model.Timeslot {
	c := *t
	if t.AppointmentID != nil {
		id := *t.AppointmentID
		c.AppointmentID = &id
	}
	return &c
}

func copyAppointment(a *model.Appointment) *model.Appointment {
	c := *a
	c.Timeslots = nil
	return &c
}

func sortRules(rules []*model.WeeklyAvailability) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Weekday != rules[j].Weekday {
			return rules[i].Weekday < rules[j].Weekday
		}
		return rules[i].Start < rules[j].Start
	})
}
