package notify

import (
	"context"
	"fmt"
	"sort"

	"git.0xdad.com/tblyler/mymed/apperr"
	"github.com/gregdel/pushover"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Pushover delivers notifications to a user's pushover devices
type Pushover struct {
	recipients map[string]*pushover.Recipient
	send       func(*pushover.Message, *pushover.Recipient) error
	deferred   *deferred
}

// NewPushover for an application token and a user's named device tokens
func NewPushover(apiToken string, deviceTokens map[string]string, logger logrus.FieldLogger) *Pushover {
	app := pushover.New(apiToken)

	recipients := make(map[string]*pushover.Recipient, len(deviceTokens))
	for name, token := range deviceTokens {
		recipients[name] = pushover.NewRecipient(token)
	}

	return &Pushover{
		recipients: recipients,
		send: func(msg *pushover.Message, recipient *pushover.Recipient) error {
			_, err := app.SendMessage(msg, recipient)
			return err
		},
		deferred: newDeferred(logger.WithField("notifier", "pushover")),
	}
}

// Schedule a notification
func (p *Pushover) Schedule(ctx context.Context, n Notification) error {
	return p.deferred.schedule(ctx, n, p.deliver)
}

// Cancel a pending notification. Delivered pushover messages cannot be recalled.
func (p *Pushover) Cancel(ctx context.Context, id int) error {
	p.deferred.cancel(id)

	return nil
}

// CancelAll pending notifications
func (p *Pushover) CancelAll(ctx context.Context) error {
	p.deferred.cancelAll()

	return nil
}

func (p *Pushover) deliver(ctx context.Context, n Notification) error {
	names := n.Devices
	if len(names) == 0 {
		for name := range p.recipients {
			names = append(names, name)
		}
		sort.Strings(names)
	}

	var targets []*pushover.Recipient
	for _, name := range names {
		if recipient, ok := p.recipients[name]; ok {
			targets = append(targets, recipient)
		}
	}

	if len(targets) == 0 {
		return fmt.Errorf("%w: no pushover device configured for notification %d", apperr.ErrPermission, n.ID)
	}

	msg := pushover.NewMessageWithTitle(n.Body, n.Title)
	msg.Priority = pushover.PriorityHigh

	var result *multierror.Error
	for _, recipient := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := p.send(msg, recipient); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to send pushover message: %w", err))
		}
	}

	return result.ErrorOrNil()
}
