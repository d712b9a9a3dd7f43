package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// deferred delivers notifications now or at their time, and lets pending
// ones be cancelled by id
type deferred struct {
	logger logrus.FieldLogger
	now    func() time.Time

	mu     sync.Mutex
	timers map[int]*time.Timer
}

func newDeferred(logger logrus.FieldLogger) *deferred {
	return &deferred{
		logger: logger,
		now:    time.Now,
		timers: make(map[int]*time.Timer),
	}
}

// schedule sends right away when n is due, otherwise arms a timer. A newer
// notification with the same id replaces a pending one.
func (d *deferred) schedule(ctx context.Context, n Notification, send func(context.Context, Notification) error) error {
	d.cancel(n.ID)

	wait := n.At.Sub(d.now())
	if wait <= 0 {
		return send(ctx, n)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var timer *time.Timer
	timer = time.AfterFunc(wait, func() {
		d.mu.Lock()
		if d.timers[n.ID] != timer {
			d.mu.Unlock()
			return
		}
		delete(d.timers, n.ID)
		d.mu.Unlock()

		if err := send(context.Background(), n); err != nil {
			d.logger.WithError(err).WithField("notification", n.ID).Error("Failed to deliver scheduled notification")
		}
	})
	d.timers[n.ID] = timer

	d.logger.WithField("notification", n.ID).Debugf("Scheduled for %s", n.At.Format(time.RFC1123))

	return nil
}

func (d *deferred) cancel(id int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	timer, ok := d.timers[id]
	if ok {
		timer.Stop()
		delete(d.timers, id)
	}

	return ok
}

func (d *deferred) cancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, timer := range d.timers {
		timer.Stop()
		delete(d.timers, id)
	}
}

func (d *deferred) pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.timers)
}
