package reminder

import (
	"strings"

	"git.0xdad.com/tblyler/mymed/apperr"
	"git.0xdad.com/tblyler/mymed/db"
	"git.0xdad.com/tblyler/mymed/schedule"
)

// Input is the user editable part of a reminder
type Input struct {
	MedicineID      string
	MedicineName    string
	Dosage          string
	TimeOfDay       schedule.Clock
	Schedule        schedule.Schedule
	RefillTracking  bool
	CurrentSupply   int
	AlertAt         int
	PushoverDevices []string
}

// InputOf returns the editable fields of r, used to prefill edits
func InputOf(r db.Reminder) Input {
	return Input{
		MedicineID:      r.MedicineID,
		MedicineName:    r.MedicineName,
		Dosage:          r.Dosage,
		TimeOfDay:       r.TimeOfDay,
		Schedule:        r.Schedule,
		RefillTracking:  r.RefillTracking,
		CurrentSupply:   r.CurrentSupply,
		AlertAt:         r.AlertAt,
		PushoverDevices: append([]string(nil), r.PushoverDevices...),
	}
}

// Validate reports every problem of the input at once
func (in Input) Validate() error {
	v := &apperr.Validator{}

	v.Check(strings.TrimSpace(in.MedicineName) != "", "medicine", "must not be blank")
	v.Check(strings.TrimSpace(in.Dosage) != "", "dosage", "must not be blank")
	v.Check(in.TimeOfDay.Hour >= 0 && in.TimeOfDay.Hour <= 23 && in.TimeOfDay.Minute >= 0 && in.TimeOfDay.Minute <= 59,
		"time", "%d:%d is not a time of day", in.TimeOfDay.Hour, in.TimeOfDay.Minute)
	v.Add(in.Schedule.Validate())
	v.Check(in.CurrentSupply >= 0, "supply", "must not be negative")
	v.Check(in.AlertAt >= 0, "alert threshold", "must not be negative")

	if in.RefillTracking {
		v.Check(in.AlertAt <= in.CurrentSupply, "alert threshold", "%d exceeds the current supply of %d", in.AlertAt, in.CurrentSupply)
	}

	return v.Err()
}

func (in Input) apply(r *db.Reminder) {
	r.MedicineID = in.MedicineID
	r.MedicineName = strings.TrimSpace(in.MedicineName)
	r.Dosage = strings.TrimSpace(in.Dosage)
	r.TimeOfDay = in.TimeOfDay
	r.Schedule = in.Schedule
	r.RefillTracking = in.RefillTracking
	r.CurrentSupply = in.CurrentSupply
	r.AlertAt = in.AlertAt
	r.PushoverDevices = append([]string(nil), in.PushoverDevices...)
}
