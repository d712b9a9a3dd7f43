package db

import (
	"time"

	"git.0xdad.com/tblyler/mymed/schedule"
	"github.com/google/uuid"
)

// Reminder for taking a medication on a schedule
type Reminder struct {
	IDUser          uuid.UUID         `json:"id_user"`
	ID              uuid.UUID         `json:"id"`
	MedicineID      string            `json:"medicine_id,omitempty"`
	MedicineName    string            `json:"medicine_name"`
	Dosage          string            `json:"dosage"`
	TimeOfDay       schedule.Clock    `json:"time"`
	Schedule        schedule.Schedule `json:"schedule"`
	IsActive        bool              `json:"is_active"`
	LastTaken       *time.Time        `json:"last_taken,omitempty"`
	LastFired       *time.Time        `json:"last_fired,omitempty"`
	RefillTracking  bool              `json:"refill_tracking"`
	CurrentSupply   int               `json:"current_supply"`
	AlertAt         int               `json:"alert_at"`
	PushoverDevices []string          `json:"pushover_devices,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ReminderSchedule implements schedule.Scheduled
func (r Reminder) ReminderSchedule() schedule.Schedule {
	return r.Schedule
}

// Clone returns a deep copy so callers cannot alias pointer fields
func (r *Reminder) Clone() Reminder {
	c := *r
	if r.LastTaken != nil {
		t := *r.LastTaken
		c.LastTaken = &t
	}

	if r.LastFired != nil {
		t := *r.LastFired
		c.LastFired = &t
	}

	c.PushoverDevices = append([]string(nil), r.PushoverDevices...)

	return c
}

// LowSupply reports whether refill tracking is on and the supply reached the alert threshold
func (r *Reminder) LowSupply() bool {
	return r.RefillTracking && r.CurrentSupply <= r.AlertAt
}

func (r *Reminder) badgerKey() []byte {
	return append(badgerPrefixKeyForReminderUser(r.IDUser), r.ID[:]...)
}

func badgerPrefixKeyForReminderUser(idUser uuid.UUID) []byte {
	return append([]byte("reminder:"), idUser[:]...)
}
