package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"git.0xdad.com/tblyler/mymed/db"
	"git.0xdad.com/tblyler/mymed/medicine"
	"git.0xdad.com/tblyler/mymed/notify"
	"git.0xdad.com/tblyler/mymed/reminder"
	"git.0xdad.com/tblyler/mymed/schedule"
	"github.com/google/uuid"
)

// openStore loads the reminders of a user for a single CLI command. Next
// occurrences are armed by mymed run, which reloads reminders on start.
func (a *app) openStore(user *db.User) (*reminder.Store, error) {
	console := notify.NewConsole(a.logger)

	store := reminder.New(user.ID, a.badger,
		reminder.WithWarner(notify.NewSupplyWarner(console, a.logger)),
		reminder.WithMetrics(a.metrics),
		reminder.WithLogger(a.logger),
	)

	if err := store.Load(); err != nil {
		return nil, err
	}

	return store, nil
}

func (a *app) userStore() (*db.User, *reminder.Store, error) {
	user, err := a.lookupUser()
	if err != nil {
		return nil, nil, err
	}

	store, err := a.openStore(user)
	if err != nil {
		return nil, nil, err
	}

	return user, store, nil
}

func (a *app) reminderID(i int) (uuid.UUID, error) {
	value := a.arg(i)
	if value == "" {
		var err error
		value, err = a.prompt.required("reminder id")
		if err != nil {
			return uuid.Nil, err
		}
	}

	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%q is not a reminder id", value)
	}

	return id, nil
}

func (a *app) dateArg(i int) (time.Time, error) {
	if value := a.arg(i); value != "" {
		return schedule.ParseDate(value)
	}

	return schedule.Date(time.Now()), nil
}

func (a *app) reminder() error {
	if len(a.args) < 1 {
		return errors.New("must supply an argument to the reminder command")
	}

	ctx := context.Background()

	switch a.args[0] {
	case "add":
		user, store, err := a.userStore()
		if err != nil {
			return err
		}

		in, err := a.promptInput(user, reminder.Input{
			TimeOfDay: schedule.ClockOf(time.Now()),
			Schedule: schedule.Schedule{
				StartDate: schedule.Date(time.Now()),
				Frequency: schedule.Daily,
				Duration:  schedule.ForOngoing,
			},
		})
		if err != nil {
			return err
		}

		r, err := store.Add(ctx, in)
		if err != nil {
			return err
		}

		log(formatReminder(r))

	case "list":
		_, store, err := a.userStore()
		if err != nil {
			return err
		}

		reminders := store.All()
		sort.SliceStable(reminders, func(i, j int) bool {
			return reminders[i].TimeOfDay.String() < reminders[j].TimeOfDay.String()
		})

		for _, r := range reminders {
			log(formatReminder(r))
		}

	case "due":
		_, store, err := a.userStore()
		if err != nil {
			return err
		}

		day, err := a.dateArg(1)
		if err != nil {
			return err
		}

		printDue(store, day)

	case "edit":
		user, store, err := a.userStore()
		if err != nil {
			return err
		}

		id, err := a.reminderID(1)
		if err != nil {
			return err
		}

		current, err := store.Get(id)
		if err != nil {
			return err
		}

		in, err := a.promptInput(user, reminder.InputOf(current))
		if err != nil {
			return err
		}

		r, err := store.Update(ctx, id, in)
		if err != nil {
			return err
		}

		log(formatReminder(r))

	case "delete":
		_, store, err := a.userStore()
		if err != nil {
			return err
		}

		id, err := a.reminderID(1)
		if err != nil {
			return err
		}

		if err := store.Delete(ctx, id); err != nil {
			return err
		}

		log(successStyle.Render("deleted reminder"), id)

	case "take":
		_, store, err := a.userStore()
		if err != nil {
			return err
		}

		id, err := a.reminderID(1)
		if err != nil {
			return err
		}

		r, err := store.Dismiss(ctx, id)
		if err != nil {
			return err
		}

		log(successStyle.Render("taken"), r.MedicineName, r.Dosage)
		if r.RefillTracking {
			log(formatSupply(r))
		}

	case "snooze":
		_, store, err := a.userStore()
		if err != nil {
			return err
		}

		id, err := a.reminderID(1)
		if err != nil {
			return err
		}

		minutes := a.config.SnoozeMinutes()
		if value := a.arg(2); value != "" {
			minutes, err = strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("%q is not a number of minutes", value)
			}
		}

		r, err := store.Snooze(ctx, id, minutes)
		if err != nil {
			return err
		}

		log(warningStyle.Render("snoozed until "+r.TimeOfDay.String()), r.MedicineName)

	default:
		return fmt.Errorf("unknown reminder command %s", a.args[0])
	}

	return nil
}

func (a *app) promptInput(user *db.User, in reminder.Input) (reminder.Input, error) {
	catalog, err := medicine.Load()
	if err != nil {
		return in, err
	}

	name, err := a.prompt.withDefault("medicine (catalog id or name)", in.MedicineName)
	if err != nil {
		return in, err
	}

	if m, err := catalog.Get(name); err == nil {
		in.MedicineID = m.ID
		in.MedicineName = m.Name
	} else if name != in.MedicineName {
		in.MedicineID = ""
		in.MedicineName = name
	}

	if in.Dosage, err = a.prompt.withDefault("dosage", in.Dosage); err != nil {
		return in, err
	}

	value, err := a.prompt.withDefault("time (HH:MM)", in.TimeOfDay.String())
	if err != nil {
		return in, err
	}

	if in.TimeOfDay, err = schedule.ParseClock(value); err != nil {
		return in, err
	}

	value, err = a.prompt.withDefault("start date (YYYY-MM-DD)", in.Schedule.StartDate.Format(schedule.DateLayout))
	if err != nil {
		return in, err
	}

	if in.Schedule.StartDate, err = schedule.ParseDate(value); err != nil {
		return in, err
	}

	names := make([]string, 0, len(schedule.Frequencies()))
	for _, f := range schedule.Frequencies() {
		names = append(names, f.String())
	}
	log(dimStyle.Render("frequencies: " + strings.Join(names, ", ")))

	value, err = a.prompt.withDefault("frequency", in.Schedule.Frequency.String())
	if err != nil {
		return in, err
	}

	if in.Schedule.Frequency, err = schedule.ParseFrequency(value); err != nil {
		return in, err
	}

	log(dimStyle.Render("durations: ongoing, 7days, 14days, 30days, 90days or a number of days"))

	value, err = a.prompt.withDefault("duration", in.Schedule.Duration.Tag())
	if err != nil {
		return in, err
	}

	if in.Schedule.Duration, err = schedule.ParseDuration(value, in.Schedule.Duration.Days); err != nil {
		return in, err
	}

	if in.RefillTracking, err = a.prompt.yesNo("track refills", in.RefillTracking); err != nil {
		return in, err
	}

	if in.RefillTracking {
		if in.CurrentSupply, err = a.prompt.integer("current supply", in.CurrentSupply); err != nil {
			return in, err
		}

		if in.AlertAt, err = a.prompt.integer("alert at", in.AlertAt); err != nil {
			return in, err
		}
	}

	if len(user.PushoverDeviceTokens) > 0 {
		value, err = a.prompt.withDefault("pushover devices (comma separated, blank for all)", strings.Join(in.PushoverDevices, ","))
		if err != nil {
			return in, err
		}

		in.PushoverDevices = nil
		for _, device := range strings.Split(value, ",") {
			device = strings.TrimSpace(device)
			if device == "" {
				continue
			}

			if _, ok := user.PushoverDeviceTokens[device]; !ok {
				return in, fmt.Errorf("the '%s' pushover device token doesn't exist for user %s", device, user.Name)
			}

			in.PushoverDevices = append(in.PushoverDevices, device)
		}
	}

	return in, nil
}

func printDue(store *reminder.Store, day time.Time) {
	log(headerStyle.Render("due " + day.Format("Monday 2006-01-02")))

	due := store.DueOn(day)
	if len(due) == 0 {
		log(dimStyle.Render("nothing due"))
		return
	}

	for _, r := range due {
		log(formatReminder(r))
	}
}

func (a *app) calendar() error {
	_, store, err := a.userStore()
	if err != nil {
		return err
	}

	day, err := a.dateArg(0)
	if err != nil {
		return err
	}

	log(formatMonth(day.Year(), day.Month(), store.DueInMonth(day.Year(), day.Month())))
	log()
	printDue(store, day)

	return nil
}

func (a *app) refill() error {
	_, store, err := a.userStore()
	if err != nil {
		return err
	}

	reminders := store.RefillReminders()
	if len(reminders) == 0 {
		log(dimStyle.Render("no reminder tracks refills"))
		return nil
	}

	for _, r := range reminders {
		log(r.MedicineName, formatSupply(r), dimStyle.Render(r.ID.String()))
	}

	return nil
}

func (a *app) history() error {
	_, store, err := a.userStore()
	if err != nil {
		return err
	}

	for _, entry := range store.History() {
		log(formatHistory(entry))
	}

	return nil
}

func (a *app) medicine() error {
	if a.arg(0) != "search" {
		return errors.New("must supply search to the medicine command")
	}

	catalog, err := medicine.Load()
	if err != nil {
		return err
	}

	for _, m := range catalog.Search(strings.Join(a.args[1:], " ")) {
		log(fmt.Sprintf("%3s  %s  %s", m.ID, headerStyle.Render(m.Name), dimStyle.Render(m.Category)))
		log("     " + m.Description)
	}

	return nil
}
