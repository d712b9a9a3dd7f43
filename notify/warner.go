package notify

import (
	"context"
	"time"

	"git.0xdad.com/tblyler/mymed/db"
	"github.com/sirupsen/logrus"
)

// SupplyWarner sends low supply warnings through a Notifier
type SupplyWarner struct {
	notifier Notifier
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewSupplyWarner delivering through n
func NewSupplyWarner(n Notifier, logger logrus.FieldLogger) *SupplyWarner {
	return &SupplyWarner{
		notifier: n,
		logger:   logger,
		now:      time.Now,
	}
}

// LowSupply warns that r reached its refill threshold. Delivery failures are
// logged only.
func (w *SupplyWarner) LowSupply(ctx context.Context, r db.Reminder) {
	log := w.logger.WithFields(logrus.Fields{
		"reminder": r.ID,
		"supply":   r.CurrentSupply,
	})

	log.Warnf("Low supply for %s", r.MedicineName)

	if err := w.notifier.Schedule(ctx, LowSupplyNotification(r, w.now())); err != nil {
		log.WithError(err).Error("Failed to send low supply warning")
	}
}
