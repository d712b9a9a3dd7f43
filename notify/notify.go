package notify

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"git.0xdad.com/tblyler/mymed/apperr"
	"git.0xdad.com/tblyler/mymed/db"
	"github.com/google/uuid"
)

// Title of every reminder notification
const Title = "MyMed Reminder"

// Notification to deliver at a point in time
type Notification struct {
	ID         int
	Title      string
	Body       string
	At         time.Time
	ReminderID uuid.UUID
	// Actions offers take and snooze on channels that support them
	Actions bool
	// Devices limits pushover delivery to named devices, empty means all
	Devices []string
}

// Notifier delivers local notifications
type Notifier interface {
	Schedule(ctx context.Context, n Notification) error
	Cancel(ctx context.Context, id int) error
	CancelAll(ctx context.Context) error
}

// ActionKind a user can pick on a notification
type ActionKind string

// Notification actions
const (
	ActionTake   ActionKind = "take"
	ActionSnooze ActionKind = "snooze"
)

// Action taken by a user on a delivered notification
type Action struct {
	ReminderID uuid.UUID
	Kind       ActionKind
}

// ActionSource streams actions independently of the call that delivered
// the notification
type ActionSource interface {
	Actions() <-chan Action
}

// Alerter is the sound and haptic side channel
type Alerter interface {
	Play(reminderID uuid.UUID)
	Stop(reminderID uuid.UUID)
	Haptic()
}

// ParseAction decodes "take:<uuid>" or "snooze:<uuid>"
func ParseAction(data string) (Action, error) {
	kind, id, ok := strings.Cut(data, ":")
	if !ok {
		return Action{}, apperr.Invalid("action", "%q has no reminder id", data)
	}

	action := Action{Kind: ActionKind(kind)}
	if action.Kind != ActionTake && action.Kind != ActionSnooze {
		return Action{}, apperr.Invalid("action", "%q is not take or snooze", kind)
	}

	reminderID, err := uuid.Parse(id)
	if err != nil {
		return Action{}, apperr.Invalid("action", "%q is not a reminder id", id)
	}
	action.ReminderID = reminderID

	return action, nil
}

func (a Action) String() string {
	return string(a.Kind) + ":" + a.ReminderID.String()
}

// IDFor derives the stable notification id of a reminder
func IDFor(reminderID uuid.UUID) int {
	return int(binary.BigEndian.Uint32(reminderID[:4]) & 0x7fffffff)
}

// ReminderNotification builds the notification asking to take a reminder's dose
func ReminderNotification(r db.Reminder, at time.Time) Notification {
	return Notification{
		ID:         IDFor(r.ID),
		Title:      Title,
		Body:       fmt.Sprintf("Take %s of %s now", r.Dosage, r.MedicineName),
		At:         at,
		ReminderID: r.ID,
		Actions:    true,
		Devices:    r.PushoverDevices,
	}
}

// LowSupplyNotification builds the warning sent when supply reaches the threshold
func LowSupplyNotification(r db.Reminder, at time.Time) Notification {
	return Notification{
		ID:         IDFor(r.ID) ^ 0x40000000,
		Title:      "MyMed Refill",
		Body:       fmt.Sprintf("Low supply alert: %s has only %d units left", r.MedicineName, r.CurrentSupply),
		At:         at,
		ReminderID: r.ID,
		Devices:    r.PushoverDevices,
	}
}
