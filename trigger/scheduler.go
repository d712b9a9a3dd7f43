package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"git.0xdad.com/tblyler/mymed/apperr"
	"git.0xdad.com/tblyler/mymed/db"
	"git.0xdad.com/tblyler/mymed/logger"
	"git.0xdad.com/tblyler/mymed/metrics"
	"git.0xdad.com/tblyler/mymed/notify"
	"git.0xdad.com/tblyler/mymed/schedule"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	// Window after the target time in which a reminder may fire
	Window = time.Minute
	// Debounce after an intake during which a reminder does not fire again
	Debounce = 2 * time.Minute
)

// Store is the reminder collection of one user as seen by the scheduler
type Store interface {
	UserID() uuid.UUID
	All() []db.Reminder
	Owns(id uuid.UUID) bool
	MarkFired(id uuid.UUID, at time.Time) error
	Dismiss(ctx context.Context, id uuid.UUID) (db.Reminder, error)
	Snooze(ctx context.Context, id uuid.UUID, minutes int) (db.Reminder, error)
}

// Config of a Scheduler
type Config struct {
	Interval       time.Duration
	SnoozeMinutes  int
	GateOnSchedule bool
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithMetrics records scans and fired reminders
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithFallback receives notifications a user's notifier is not permitted to deliver
func WithFallback(n notify.Notifier) Option {
	return func(s *Scheduler) {
		s.fallback = n
	}
}

type watched struct {
	store    Store
	notifier notify.Notifier
}

// Scheduler periodically fires the reminders of watched stores whose time
// of day has come
type Scheduler struct {
	config   Config
	cron     *cron.Cron
	alerter  notify.Alerter
	fallback notify.Notifier
	metrics  *metrics.Metrics
	logger   logrus.FieldLogger
	now      func() time.Time

	// scanning keeps scans from cron and wake ups sequential
	scanning sync.Mutex

	mu      sync.Mutex
	stores  map[uuid.UUID]watched
	cancel  context.CancelFunc
	entryID cron.EntryID
}

// New scheduler. Nothing runs until Start.
func New(config Config, alerter notify.Alerter, l logrus.FieldLogger, opts ...Option) *Scheduler {
	l = l.WithField("component", "trigger")

	cronLogger := logger.Cron(l)

	s := &Scheduler{
		config:  config,
		alerter: alerter,
		logger:  l,
		now:     time.Now,
		stores:  make(map[uuid.UUID]watched),
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(
				cron.Recover(cronLogger),
				cron.SkipIfStillRunning(cronLogger),
			),
		),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.config.Interval <= 0 {
		s.config.Interval = 30 * time.Second
	}

	if s.config.SnoozeMinutes < 1 {
		s.config.SnoozeMinutes = 10
	}

	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	if s.fallback == nil {
		s.fallback = notify.NewConsole(l)
	}

	return s
}

// Start scanning every configured interval
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("scheduler already started")
	}

	ctx, cancel := context.WithCancel(context.Background())

	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.config.Interval), func() {
		s.Scan(ctx)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("failed to schedule scan: %w", err)
	}

	s.cancel = cancel
	s.entryID = entryID
	s.cron.Start()

	s.logger.Infof("Scanning reminders every %s", s.config.Interval)

	return nil
}

// Stop scanning and wait for a running scan to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.cron.Remove(s.entryID)
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-s.cron.Stop().Done()

	s.logger.Info("Stopped scanning reminders")
}

// Every runs job on the scan cron at interval until ctx is done. Jobs only
// run between Start and Stop.
func (s *Scheduler) Every(ctx context.Context, interval time.Duration, job func(context.Context)) error {
	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if ctx.Err() == nil {
			job(ctx)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.cron.Remove(entryID)
	}()

	return nil
}

// Watch adds a user's store to the scan. n delivers that user's
// notifications, nil uses the fallback notifier.
func (s *Scheduler) Watch(store Store, n notify.Notifier) {
	if n == nil {
		n = s.fallback
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stores[store.UserID()] = watched{store: store, notifier: n}
	s.metrics.WatchedUsers.Set(float64(len(s.stores)))
}

// Unwatch removes a user's store from the scan
func (s *Scheduler) Unwatch(userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.stores, userID)
	s.metrics.WatchedUsers.Set(float64(len(s.stores)))
}

func (s *Scheduler) snapshot() []watched {
	s.mu.Lock()
	defer s.mu.Unlock()

	stores := make([]watched, 0, len(s.stores))
	for _, w := range s.stores {
		stores = append(stores, w)
	}

	return stores
}

// Scan fires every reminder of every watched store that is due now
func (s *Scheduler) Scan(ctx context.Context) {
	s.scanning.Lock()
	defer s.scanning.Unlock()

	started := time.Now()
	now := s.now()

	for _, w := range s.snapshot() {
		for _, r := range w.store.All() {
			if ctx.Err() != nil {
				return
			}

			if s.shouldFire(r, now) {
				s.fire(ctx, w, r, now)
			}
		}
	}

	s.metrics.Scans.Inc()
	s.metrics.ScanDuration.Observe(time.Since(started).Seconds())
}

// Waker returns a Notifier that scans at the time of every notification
// scheduled on it. Stores given the Waker fire their reminders on the
// minute instead of on the next interval.
func (s *Scheduler) Waker(ctx context.Context) *notify.Timer {
	return notify.NewTimer(func(context.Context, notify.Notification) error {
		// MarkFired schedules on the Waker from within a scan
		go func() {
			if ctx.Err() == nil {
				s.Scan(ctx)
			}
		}()

		return nil
	}, s.logger)
}

// AwaitingResponse reports whether r fired at or after its current target
// time today and was not dismissed since
func AwaitingResponse(r db.Reminder, now time.Time) bool {
	return r.IsActive && r.LastFired != nil && !r.LastFired.Before(r.TimeOfDay.On(now))
}

func (s *Scheduler) shouldFire(r db.Reminder, now time.Time) bool {
	if AwaitingResponse(r, now) {
		return false
	}

	target := r.TimeOfDay.On(now)
	if now.Before(target) || now.Sub(target) >= Window {
		return false
	}

	if r.LastTaken != nil && now.Sub(*r.LastTaken) <= Debounce {
		return false
	}

	if s.config.GateOnSchedule && !schedule.IsDue(r.Schedule, now) {
		return false
	}

	return true
}

func (s *Scheduler) fire(ctx context.Context, w watched, r db.Reminder, now time.Time) {
	log := s.logger.WithFields(logrus.Fields{
		"user":     r.IDUser,
		"reminder": r.ID,
	})

	log.Infof("Reminder due: %s %s", r.Dosage, r.MedicineName)

	n := notify.ReminderNotification(r, now)
	if err := w.notifier.Schedule(ctx, n); err != nil {
		s.notifyFailed(err)

		if errors.Is(err, apperr.ErrPermission) {
			log.WithError(err).Warn("Notifications not permitted, using fallback alert")
			err = s.fallback.Schedule(ctx, n)
		}

		if err != nil {
			log.WithError(err).Error("Failed to deliver reminder notification")
		}
	}

	if s.alerter != nil {
		s.alerter.Play(r.ID)
		s.alerter.Haptic()
	}

	if err := w.store.MarkFired(r.ID, now); err != nil {
		log.WithError(err).Warn("Failed to mark reminder as fired")
	}

	s.metrics.Fired.Inc()
}

func (s *Scheduler) notifyFailed(err error) {
	kind := "delivery"
	if errors.Is(err, apperr.ErrPermission) {
		kind = "permission"
	}

	s.metrics.NotifyErrors.WithLabelValues(kind).Inc()
}

// Handle routes one notification action to the store owning the reminder
func (s *Scheduler) Handle(ctx context.Context, action notify.Action) error {
	for _, w := range s.snapshot() {
		if !w.store.Owns(action.ReminderID) {
			continue
		}

		var err error
		switch action.Kind {
		case notify.ActionTake:
			_, err = w.store.Dismiss(ctx, action.ReminderID)
		case notify.ActionSnooze:
			_, err = w.store.Snooze(ctx, action.ReminderID, s.config.SnoozeMinutes)
		default:
			return apperr.Invalid("action", "%q is not take or snooze", action.Kind)
		}

		return err
	}

	return fmt.Errorf("%w: reminder %s is not watched", apperr.ErrNotFound, action.ReminderID)
}

// Consume handles actions until ctx is done or actions is closed
func (s *Scheduler) Consume(ctx context.Context, actions <-chan notify.Action) {
	for {
		select {
		case <-ctx.Done():
			return

		case action, ok := <-actions:
			if !ok {
				return
			}

			if err := s.Handle(ctx, action); err != nil {
				s.logger.WithError(err).WithField("reminder", action.ReminderID).Warnf("Failed to %s reminder", action.Kind)
			}
		}
	}
}
