package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"git.0xdad.com/tblyler/mymed/apperr"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Console logs notifications. It is the fallback alert when no push
// channel is permitted, and the reminder is dismissed by typing into the
// mymed run console.
type Console struct {
	logger   logrus.FieldLogger
	deferred *deferred
}

// NewConsole notifier
func NewConsole(logger logrus.FieldLogger) *Console {
	logger = logger.WithField("notifier", "console")

	return &Console{
		logger:   logger,
		deferred: newDeferred(logger),
	}
}

// Schedule a notification
func (c *Console) Schedule(ctx context.Context, n Notification) error {
	return c.deferred.schedule(ctx, n, func(ctx context.Context, n Notification) error {
		l := c.logger.WithFields(logrus.Fields{
			"notification": n.ID,
			"reminder":     n.ReminderID,
		})

		if !n.Actions {
			l.Warnf("%s: %s", n.Title, n.Body)
			return nil
		}

		l.Warnf("%s: %s (type `take %s` or `snooze %s` into mymed run)", n.Title, n.Body, n.ReminderID, n.ReminderID)

		return nil
	})
}

// Cancel a pending notification
func (c *Console) Cancel(ctx context.Context, id int) error {
	c.deferred.cancel(id)

	return nil
}

// CancelAll pending notifications
func (c *Console) CancelAll(ctx context.Context) error {
	c.deferred.cancelAll()

	return nil
}

type fallback struct {
	primary  Notifier
	fallback Notifier
}

// WithFallback delivers through fallback whenever primary reports a
// permission error
func WithFallback(primary, secondary Notifier) Notifier {
	return &fallback{primary: primary, fallback: secondary}
}

func (f *fallback) Schedule(ctx context.Context, n Notification) error {
	err := f.primary.Schedule(ctx, n)
	if errors.Is(err, apperr.ErrPermission) {
		if fbErr := f.fallback.Schedule(ctx, n); fbErr != nil {
			return fmt.Errorf("%v; fallback: %w", err, fbErr)
		}

		return nil
	}

	return err
}

func (f *fallback) Cancel(ctx context.Context, id int) error {
	return multierror.Append(nil, f.primary.Cancel(ctx, id), f.fallback.Cancel(ctx, id)).ErrorOrNil()
}

func (f *fallback) CancelAll(ctx context.Context) error {
	return multierror.Append(nil, f.primary.CancelAll(ctx), f.fallback.CancelAll(ctx)).ErrorOrNil()
}

// Fanout delivers every notification to all notifiers
type Fanout []Notifier

// Schedule on every notifier. Permission errors only surface when no
// notifier accepted the notification.
func (f Fanout) Schedule(ctx context.Context, n Notification) error {
	if len(f) == 0 {
		return fmt.Errorf("%w: no notification channel configured", apperr.ErrPermission)
	}

	var result *multierror.Error
	delivered := false
	failed := false

	for _, notifier := range f {
		err := notifier.Schedule(ctx, n)
		switch {
		case err == nil:
			delivered = true
		case errors.Is(err, apperr.ErrPermission):
			result = multierror.Append(result, err)
		default:
			failed = true
			result = multierror.Append(result, err)
		}
	}

	if delivered && !failed {
		return nil
	}

	return result.ErrorOrNil()
}

// Cancel on every notifier
func (f Fanout) Cancel(ctx context.Context, id int) error {
	var result *multierror.Error
	for _, notifier := range f {
		result = multierror.Append(result, notifier.Cancel(ctx, id))
	}

	return result.ErrorOrNil()
}

// CancelAll on every notifier
func (f Fanout) CancelAll(ctx context.Context) error {
	var result *multierror.Error
	for _, notifier := range f {
		result = multierror.Append(result, notifier.CancelAll(ctx))
	}

	return result.ErrorOrNil()
}

// Bell is a terminal Alerter that rings once per sounding reminder
type Bell struct {
	w io.Writer

	mu       sync.Mutex
	sounding map[uuid.UUID]struct{}
}

// NewBell writing to w
func NewBell(w io.Writer) *Bell {
	return &Bell{
		w:        w,
		sounding: make(map[uuid.UUID]struct{}),
	}
}

// Play the alarm for a reminder
func (b *Bell) Play(reminderID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.sounding[reminderID]; ok {
		return
	}

	b.sounding[reminderID] = struct{}{}
	fmt.Fprint(b.w, "\a")
}

// Stop the alarm of a reminder
func (b *Bell) Stop(reminderID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.sounding, reminderID)
}

// Haptic has no terminal equivalent beyond the bell
func (b *Bell) Haptic() {
	fmt.Fprint(b.w, "\a")
}

// Sounding reports whether the alarm of a reminder is playing
func (b *Bell) Sounding(reminderID uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.sounding[reminderID]
	return ok
}
