package reminder

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"git.0xdad.com/tblyler/mymed/apperr"
	"git.0xdad.com/tblyler/mymed/db"
	"git.0xdad.com/tblyler/mymed/metrics"
	"git.0xdad.com/tblyler/mymed/notify"
	"git.0xdad.com/tblyler/mymed/schedule"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Persister stores a user's reminders and adherence history
type Persister interface {
	ListRemindersForUser(idUser uuid.UUID) ([]*db.Reminder, error)
	ReplaceRemindersForUser(idUser uuid.UUID, reminders []*db.Reminder) error
	AppendHistory(entry *db.HistoryEntry) error
	ListHistoryForUser(idUser uuid.UUID) ([]*db.HistoryEntry, error)
}

// Warner is told when a dismissal brings a reminder's supply to its threshold
type Warner interface {
	LowSupply(ctx context.Context, r db.Reminder)
}

// Option configures a Store
type Option func(*Store)

// WithNotifier is told the next occurrence of a reminder whenever it is
// added, edited, snoozed or fired, and when ScheduleUpcoming is called
func WithNotifier(n notify.Notifier) Option {
	return func(s *Store) {
		s.notifier = n
	}
}

// WithAlerter silences alarms on dismiss and snooze
func WithAlerter(a notify.Alerter) Option {
	return func(s *Store) {
		s.alerter = a
	}
}

// WithWarner receives low supply warnings
func WithWarner(w Warner) Option {
	return func(s *Store) {
		s.warner = w
	}
}

// WithMetrics counts responses and storage failures
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is the in-memory reminder collection of one user. Every mutation is
// written through to the Persister. A failed write is reported as
// apperr.ErrStorage and the mutation stays applied in memory.
type Store struct {
	userID   uuid.UUID
	persist  Persister
	notifier notify.Notifier
	alerter  notify.Alerter
	warner   Warner
	metrics  *metrics.Metrics
	logger   logrus.FieldLogger
	now      func() time.Time

	mu        sync.Mutex
	reminders []*db.Reminder
	history   []db.HistoryEntry
}

// New store for userID. Call Load to read persisted state.
func New(userID uuid.UUID, persist Persister, opts ...Option) *Store {
	s := &Store{
		userID:  userID,
		persist: persist,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	s.logger = s.logger.WithField("user", userID)

	return s
}

// UserID owning the store
func (s *Store) UserID() uuid.UUID {
	return s.userID
}

// Load replaces the in-memory state with the persisted one
func (s *Store) Load() error {
	reminders, err := s.persist.ListRemindersForUser(s.userID)
	if err != nil {
		return apperr.Storage("list reminders", err)
	}

	history, err := s.persist.ListHistoryForUser(s.userID)
	if err != nil {
		return apperr.Storage("list history", err)
	}

	sort.SliceStable(reminders, func(i, j int) bool {
		return reminders[i].CreatedAt.Before(reminders[j].CreatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reminders = reminders
	s.history = make([]db.HistoryEntry, 0, len(history))
	for _, entry := range history {
		s.history = append(s.history, *entry)
	}

	return nil
}

// Add creates a reminder and schedules its next notification
func (s *Store) Add(ctx context.Context, in Input) (db.Reminder, error) {
	if err := in.Validate(); err != nil {
		return db.Reminder{}, err
	}

	r := &db.Reminder{
		IDUser:    s.userID,
		ID:        uuid.New(),
		CreatedAt: s.now(),
	}
	in.apply(r)

	s.mu.Lock()
	s.reminders = append(s.reminders, r)
	added := r.Clone()
	err := s.save()
	s.mu.Unlock()

	s.scheduleNext(ctx, added)

	return added, err
}

// Update replaces the editable fields of a reminder. Activity and intake
// state are kept.
func (s *Store) Update(ctx context.Context, id uuid.UUID, in Input) (db.Reminder, error) {
	if err := in.Validate(); err != nil {
		return db.Reminder{}, err
	}

	s.mu.Lock()
	r, err := s.find(id)
	if err != nil {
		s.mu.Unlock()
		return db.Reminder{}, err
	}

	in.apply(r)
	updated := r.Clone()
	err = s.save()
	s.mu.Unlock()

	s.scheduleNext(ctx, updated)

	return updated, err
}

// Delete removes a reminder and cancels its pending notification
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	index := s.index(id)
	if index < 0 {
		s.mu.Unlock()
		return s.notFound(id)
	}

	s.reminders = append(s.reminders[:index], s.reminders[index+1:]...)
	err := s.save()
	s.mu.Unlock()

	if s.alerter != nil {
		s.alerter.Stop(id)
	}

	if s.notifier != nil {
		if cancelErr := s.notifier.Cancel(ctx, notify.IDFor(id)); cancelErr != nil {
			s.logger.WithError(cancelErr).WithField("reminder", id).Warn("Failed to cancel notification")
		}
	}

	return err
}

// Dismiss marks a reminder as taken. With refill tracking the supply drops
// by one, never below zero, and reaching the threshold warns once.
func (s *Store) Dismiss(ctx context.Context, id uuid.UUID) (db.Reminder, error) {
	now := s.now()

	s.mu.Lock()
	r, err := s.find(id)
	if err != nil {
		s.mu.Unlock()
		return db.Reminder{}, err
	}

	r.IsActive = false
	r.LastTaken = &now

	lowSupply := false
	if r.RefillTracking && r.CurrentSupply > 0 {
		r.CurrentSupply--
		lowSupply = r.CurrentSupply <= r.AlertAt
	}

	entry := s.record(r, db.StatusTaken, now)
	dismissed := r.Clone()
	err = s.saveWithHistory(entry)
	s.mu.Unlock()

	if s.alerter != nil {
		s.alerter.Stop(id)
	}

	if lowSupply {
		if s.metrics != nil {
			s.metrics.LowSupply.Inc()
		}

		if s.warner != nil {
			s.warner.LowSupply(ctx, dismissed)
		}
	}

	return dismissed, err
}

// Snooze moves a reminder's time to now plus minutes. The reminder stays
// active so it fires again at the new time.
func (s *Store) Snooze(ctx context.Context, id uuid.UUID, minutes int) (db.Reminder, error) {
	if minutes < 1 {
		return db.Reminder{}, apperr.Invalid("snooze", "%d minutes is less than one", minutes)
	}

	now := s.now()

	s.mu.Lock()
	r, err := s.find(id)
	if err != nil {
		s.mu.Unlock()
		return db.Reminder{}, err
	}

	r.TimeOfDay = schedule.ClockOf(now.Add(time.Duration(minutes) * time.Minute))
	r.IsActive = true

	entry := s.record(r, db.StatusSnoozed, now)
	snoozed := r.Clone()
	err = s.saveWithHistory(entry)
	s.mu.Unlock()

	if s.alerter != nil {
		s.alerter.Stop(id)
	}

	s.scheduleNext(ctx, snoozed)

	return snoozed, err
}

// MarkFired flags a reminder as awaiting a response since at and schedules
// its following occurrence
func (s *Store) MarkFired(id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	r, err := s.find(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	r.IsActive = true
	r.LastFired = &at

	fired := r.Clone()
	err = s.save()
	s.mu.Unlock()

	s.scheduleNext(context.Background(), fired)

	return err
}

// ScheduleUpcoming tells the notifier the next occurrence of every reminder
func (s *Store) ScheduleUpcoming(ctx context.Context) {
	for _, r := range s.All() {
		s.scheduleNext(ctx, r)
	}
}

// Get a copy of a reminder
func (s *Store) Get(id uuid.UUID) (db.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.find(id)
	if err != nil {
		return db.Reminder{}, err
	}

	return r.Clone(), nil
}

// Owns reports whether id is one of this user's reminders
func (s *Store) Owns(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.index(id) >= 0
}

// All reminders in creation order
func (s *Store) All() []db.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.copies(nil)
}

// History of responses, newest first
func (s *Store) History() []db.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]db.HistoryEntry(nil), s.history...)
}

// DueOn returns the reminders whose schedule is due on day
func (s *Store) DueOn(day time.Time) []db.Reminder {
	return schedule.Due(s.All(), day)
}

// DueInMonth maps each day of the month that has due reminders to them
func (s *Store) DueInMonth(year int, month time.Month) map[int][]db.Reminder {
	all := s.All()
	due := make(map[int][]db.Reminder)

	for day := time.Date(year, month, 1, 0, 0, 0, 0, time.Local); day.Month() == month; day = day.AddDate(0, 0, 1) {
		if reminders := schedule.Due(all, day); len(reminders) > 0 {
			due[day.Day()] = reminders
		}
	}

	return due
}

// RefillReminders returns the reminders with refill tracking on
func (s *Store) RefillReminders() []db.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.copies(func(r *db.Reminder) bool {
		return r.RefillTracking
	})
}

func (s *Store) copies(keep func(*db.Reminder) bool) []db.Reminder {
	reminders := make([]db.Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		if keep == nil || keep(r) {
			reminders = append(reminders, r.Clone())
		}
	}

	return reminders
}

func (s *Store) index(id uuid.UUID) int {
	for i, r := range s.reminders {
		if r.ID == id {
			return i
		}
	}

	return -1
}

func (s *Store) find(id uuid.UUID) (*db.Reminder, error) {
	index := s.index(id)
	if index < 0 {
		return nil, s.notFound(id)
	}

	return s.reminders[index], nil
}

func (s *Store) notFound(id uuid.UUID) error {
	return fmt.Errorf("%w: reminder %s", apperr.ErrNotFound, id)
}

// record prepends a history entry, callers hold s.mu
func (s *Store) record(r *db.Reminder, status db.HistoryStatus, at time.Time) db.HistoryEntry {
	entry := db.HistoryEntry{
		IDUser:       s.userID,
		ID:           uuid.New(),
		ReminderID:   r.ID,
		MedicineName: r.MedicineName,
		Dosage:       r.Dosage,
		Timestamp:    at,
		Status:       status,
	}

	s.history = append([]db.HistoryEntry{entry}, s.history...)

	if s.metrics != nil {
		s.metrics.Responses.WithLabelValues(string(status)).Inc()
	}

	return entry
}

// save writes every reminder of the user, callers hold s.mu
func (s *Store) save() error {
	return s.storageFailure(apperr.Storage("save reminders", s.persist.ReplaceRemindersForUser(s.userID, s.reminders)))
}

func (s *Store) saveWithHistory(entry db.HistoryEntry) error {
	var result *multierror.Error

	result = multierror.Append(result, s.save())
	result = multierror.Append(result, s.storageFailure(apperr.Storage("append history", s.persist.AppendHistory(&entry))))

	return result.ErrorOrNil()
}

func (s *Store) storageFailure(err error) error {
	if err == nil {
		return nil
	}

	s.logger.WithError(err).Warn("Keeping in-memory reminder state after storage failure")

	if s.metrics != nil {
		s.metrics.StorageErrors.Inc()
	}

	return err
}

func (s *Store) scheduleNext(ctx context.Context, r db.Reminder) {
	if s.notifier == nil {
		return
	}

	at := r.TimeOfDay.Next(s.now())
	if err := s.notifier.Schedule(ctx, notify.ReminderNotification(r, at)); err != nil {
		s.logger.WithError(err).WithField("reminder", r.ID).Warn("Failed to schedule next notification")
	}
}
