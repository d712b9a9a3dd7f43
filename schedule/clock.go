package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"git.0xdad.com/tblyler/mymed/apperr"
)

// Clock is a local time of day with minute precision
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" in 24 hour form
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return Clock{}, apperr.Invalid("time", "%q is not in HH:MM form", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, apperr.Invalid("time", "%q has an invalid hour", s)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return Clock{}, apperr.Invalid("time", "%q has an invalid minute", s)
	}

	return Clock{Hour: hour, Minute: minute}, nil
}

// ClockOf returns the time of day of t, dropping seconds
func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

// On returns the instant of the clock on the calendar day of t
func (c Clock) On(t time.Time) time.Time {
	y, m, d := t.Date()

	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, t.Location())
}

// Next returns the first instant of the clock strictly after now
func (c Clock) Next(now time.Time) time.Time {
	at := c.On(now)
	if !at.After(now) {
		at = c.On(now.AddDate(0, 0, 1))
	}

	return at
}

// Add moves the clock by d, wrapping around midnight
func (c Clock) Add(d time.Duration) Clock {
	const day = 24 * 60

	minutes := (c.Hour*60 + c.Minute + int(d/time.Minute)) % day
	if minutes < 0 {
		minutes += day
	}

	return Clock{Hour: minutes / 60, Minute: minutes % 60}
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// MarshalText implements encoding.TextMarshaler
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Clock) UnmarshalText(text []byte) error {
	parsed, err := ParseClock(string(text))
	if err != nil {
		return err
	}

	*c = parsed

	return nil
}
