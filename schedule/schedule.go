package schedule

import (
	"encoding/json"
	"fmt"
	"time"

	"git.0xdad.com/tblyler/mymed/apperr"
)

// Schedule decides on which calendar days a reminder is due
type Schedule struct {
	StartDate time.Time
	Frequency Frequency
	Duration  Duration
}

// Scheduled is anything carrying a Schedule
type Scheduled interface {
	ReminderSchedule() Schedule
}

// Validate the schedule as entered by a user
func (s Schedule) Validate() error {
	v := &apperr.Validator{}
	v.Check(!s.StartDate.IsZero(), "start_date", "must be set")
	_, known := frequencyNames[s.Frequency]
	v.Check(known, "frequency", "%d is not a known frequency", int(s.Frequency))
	v.Add(s.Duration.Validate())

	return v.Err()
}

// IsDue reports whether the schedule is due on the calendar day of day.
// The time of day of both day and StartDate is ignored.
func IsDue(s Schedule, day time.Time) bool {
	start := Date(s.StartDate)
	candidate := Date(day.In(start.Location()))
	if candidate.Before(start) {
		return false
	}

	ongoing := s.Duration.Kind == Ongoing

	switch s.Frequency {
	case Daily, TwiceDaily, EveryMorning, EveryEvening, Every8h, Every12h:
		if ongoing {
			return true
		}

		return DaysBetween(start, candidate) <= s.Duration.days()-1

	case Weekly:
		if candidate.Weekday() != start.Weekday() {
			return false
		}

		if ongoing {
			return true
		}

		week := DaysBetween(start, candidate) / 7

		return week >= 0 && week < s.Duration.weeklyOccurrences()

	case Monthly:
		if candidate.Day() != start.Day() {
			return false
		}

		if ongoing {
			return true
		}

		months := (candidate.Year()-start.Year())*12 + int(candidate.Month()-start.Month())

		return months >= 0 && months < s.Duration.monthlyOccurrences()

	case Once:
		return SameDay(candidate, start)

	case AsNeeded:
		return false
	}

	return false
}

// Due filters items to those whose schedule is due on day, keeping order
func Due[T Scheduled](items []T, day time.Time) []T {
	var due []T
	for _, item := range items {
		if IsDue(item.ReminderSchedule(), day) {
			due = append(due, item)
		}
	}

	return due
}

// LastDay is the final active day of a bounded daily-family schedule.
// ok is false for ongoing schedules and for other frequencies.
func (s Schedule) LastDay() (day time.Time, ok bool) {
	if !s.Frequency.dailyFamily() || s.Duration.Kind == Ongoing {
		return time.Time{}, false
	}

	return Date(s.StartDate).AddDate(0, 0, s.Duration.days()-1), true
}

func (s Schedule) String() string {
	return fmt.Sprintf("%s from %s (%s)", s.Frequency, s.StartDate.Format(DateLayout), s.Duration)
}

type scheduleJSON struct {
	StartDate      string    `json:"start_date"`
	Frequency      Frequency `json:"frequency"`
	Duration       string    `json:"duration"`
	CustomDuration int       `json:"custom_duration,omitempty"`
}

// MarshalJSON stores the start date as a plain calendar date
func (s Schedule) MarshalJSON() ([]byte, error) {
	out := scheduleJSON{
		StartDate: s.StartDate.Format(DateLayout),
		Frequency: s.Frequency,
		Duration:  s.Duration.Tag(),
	}

	if s.Duration.Kind == Custom {
		out.CustomDuration = s.Duration.Days
	}

	return json.Marshal(out)
}

// UnmarshalJSON rejects unknown frequency and duration tags
func (s *Schedule) UnmarshalJSON(data []byte) error {
	in := scheduleJSON{}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	start, err := ParseDate(in.StartDate)
	if err != nil {
		return fmt.Errorf("failed to parse schedule start date %q: %w", in.StartDate, err)
	}

	duration, err := ParseDuration(in.Duration, in.CustomDuration)
	if err != nil {
		return err
	}

	*s = Schedule{
		StartDate: start,
		Frequency: in.Frequency,
		Duration:  duration,
	}

	return nil
}
