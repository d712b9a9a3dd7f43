package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Timer runs fn once each scheduled notification comes due. It delivers
// nothing to a user by itself.
type Timer struct {
	fn       func(context.Context, Notification) error
	deferred *deferred
}

// NewTimer calling fn at the time of every notification
func NewTimer(fn func(ctx context.Context, n Notification) error, logger logrus.FieldLogger) *Timer {
	return &Timer{
		fn:       fn,
		deferred: newDeferred(logger.WithField("notifier", "timer")),
	}
}

// Schedule fn for n.At
func (t *Timer) Schedule(ctx context.Context, n Notification) error {
	return t.deferred.schedule(ctx, n, t.fn)
}

// Cancel a pending call
func (t *Timer) Cancel(ctx context.Context, id int) error {
	t.deferred.cancel(id)

	return nil
}

// CancelAll pending calls
func (t *Timer) CancelAll(ctx context.Context) error {
	t.deferred.cancelAll()

	return nil
}
