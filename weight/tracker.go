package weight

import (
	"context"
	"math"
	"time"

	"git.0xdad.com/tblyler/mymed/apperr"
	"git.0xdad.com/tblyler/mymed/db"
	"git.0xdad.com/tblyler/mymed/metrics"
	"git.0xdad.com/tblyler/mymed/schedule"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Repository persists weight entries and goals
type Repository interface {
	InsertEntry(ctx context.Context, entry *db.WeightEntry) error
	UpdateEntry(ctx context.Context, entry *db.WeightEntry) error
	DeleteEntry(ctx context.Context, userID, id uuid.UUID) error
	ListEntriesForUser(ctx context.Context, userID uuid.UUID) ([]db.WeightEntry, error)
	GetGoal(ctx context.Context, userID uuid.UUID) (*db.WeightGoal, error)
	PutGoal(ctx context.Context, goal *db.WeightGoal) error
	Subscribe(ctx context.Context, userID uuid.UUID) <-chan struct{}
}

// Tracker records the weekly weight of one user
type Tracker struct {
	userID  uuid.UUID
	repo    Repository
	metrics *metrics.Metrics
	logger  logrus.FieldLogger
	now     func() time.Time
}

// NewTracker for userID. m may be nil.
func NewTracker(userID uuid.UUID, repo Repository, m *metrics.Metrics, logger logrus.FieldLogger) *Tracker {
	if m == nil {
		m = metrics.New()
	}

	return &Tracker{
		userID:  userID,
		repo:    repo,
		metrics: m,
		logger:  logger.WithFields(logrus.Fields{"component": "weight", "user": userID}),
		now:     time.Now,
	}
}

func validWeight(field string, kg float64) error {
	if math.IsNaN(kg) || math.IsInf(kg, 0) || kg <= 0 {
		return apperr.Invalid(field, "%v is not a positive weight", kg)
	}

	return nil
}

// Record the weight of the week containing day. An existing entry of that
// week is replaced.
func (t *Tracker) Record(ctx context.Context, day time.Time, kg float64) (db.WeightEntry, error) {
	if err := validWeight("weight", kg); err != nil {
		return db.WeightEntry{}, err
	}

	week := schedule.WeekStart(day)

	entries, err := t.repo.ListEntriesForUser(ctx, t.userID)
	if err != nil {
		return db.WeightEntry{}, err
	}

	for _, entry := range entries {
		if !schedule.SameDay(entry.WeekStartDate, week) {
			continue
		}

		entry.WeightKg = kg
		if err := t.repo.UpdateEntry(ctx, &entry); err != nil {
			return db.WeightEntry{}, err
		}

		t.metrics.WeightEntries.Inc()
		t.logger.Debugf("Updated week of %s", week.Format(schedule.DateLayout))

		return entry, nil
	}

	entry := db.WeightEntry{
		ID:            uuid.New(),
		UserID:        t.userID,
		WeekStartDate: week,
		WeightKg:      kg,
	}

	if err := t.repo.InsertEntry(ctx, &entry); err != nil {
		return db.WeightEntry{}, err
	}

	t.metrics.WeightEntries.Inc()
	t.logger.Debugf("Recorded week of %s", week.Format(schedule.DateLayout))

	return entry, nil
}

// Delete an entry
func (t *Tracker) Delete(ctx context.Context, id uuid.UUID) error {
	return t.repo.DeleteEntry(ctx, t.userID, id)
}

// Entries newest week first
func (t *Tracker) Entries(ctx context.Context) ([]db.WeightEntry, error) {
	return t.repo.ListEntriesForUser(ctx, t.userID)
}

// SetGoal replaces the goal with target, starting from the latest recorded weight today
func (t *Tracker) SetGoal(ctx context.Context, target float64) (db.WeightGoal, error) {
	if err := validWeight("target", target); err != nil {
		return db.WeightGoal{}, err
	}

	entries, err := t.repo.ListEntriesForUser(ctx, t.userID)
	if err != nil {
		return db.WeightGoal{}, err
	}

	if len(entries) == 0 {
		return db.WeightGoal{}, apperr.Invalid("target", "needs at least one recorded weight")
	}

	goal := db.WeightGoal{
		UserID:         t.userID,
		TargetWeightKg: target,
		StartDate:      schedule.Date(t.now()),
		StartWeightKg:  entries[0].WeightKg,
	}

	if err := t.repo.PutGoal(ctx, &goal); err != nil {
		return db.WeightGoal{}, err
	}

	return goal, nil
}

// Goal of the user, nil when none was set
func (t *Tracker) Goal(ctx context.Context) (*db.WeightGoal, error) {
	return t.repo.GetGoal(ctx, t.userID)
}

// Insights on the current entries and goal
func (t *Tracker) Insights(ctx context.Context) (Insight, error) {
	entries, err := t.repo.ListEntriesForUser(ctx, t.userID)
	if err != nil {
		return Insight{}, err
	}

	goal, err := t.repo.GetGoal(ctx, t.userID)
	if err != nil {
		return Insight{}, err
	}

	return ComputeInsights(entries, goal), nil
}

// Watch calls fn with fresh insights now and after every change until ctx is done
func (t *Tracker) Watch(ctx context.Context, fn func(Insight, error)) {
	changes := t.repo.Subscribe(ctx, t.userID)

	fn(t.Insights(ctx))

	for range changes {
		if ctx.Err() != nil {
			return
		}

		insight, err := t.Insights(ctx)
		if err != nil {
			t.logger.WithError(err).Warn("Failed to refresh insights")
		}

		fn(insight, err)
	}
}
