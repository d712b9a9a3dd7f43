package schedule

import (
	"fmt"

	"git.0xdad.com/tblyler/mymed/apperr"
)

// Frequency of a reminder
type Frequency int

// Frequencies a reminder can be scheduled with
const (
	Daily Frequency = iota + 1
	TwiceDaily
	EveryMorning
	EveryEvening
	Every8h
	Every12h
	Weekly
	Monthly
	Once
	AsNeeded
)

var frequencyNames = map[Frequency]string{
	Daily:        "daily",
	TwiceDaily:   "twice_daily",
	EveryMorning: "every_morning",
	EveryEvening: "every_evening",
	Every8h:      "every_8h",
	Every12h:     "every_12h",
	Weekly:       "weekly",
	Monthly:      "monthly",
	Once:         "once",
	AsNeeded:     "as_needed",
}

// Frequencies in presentation order
func Frequencies() []Frequency {
	return []Frequency{Daily, TwiceDaily, EveryMorning, EveryEvening, Every8h, Every12h, Weekly, Monthly, Once, AsNeeded}
}

// ParseFrequency from its tag, e.g. "twice_daily"
func ParseFrequency(tag string) (Frequency, error) {
	for f, name := range frequencyNames {
		if name == tag {
			return f, nil
		}
	}

	return 0, apperr.Invalid("frequency", "%q is not a known frequency", tag)
}

func (f Frequency) String() string {
	if name, ok := frequencyNames[f]; ok {
		return name
	}

	return fmt.Sprintf("Frequency(%d)", int(f))
}

// MarshalText implements encoding.TextMarshaler
func (f Frequency) MarshalText() ([]byte, error) {
	name, ok := frequencyNames[f]
	if !ok {
		return nil, fmt.Errorf("cannot marshal unknown frequency %d", int(f))
	}

	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (f *Frequency) UnmarshalText(text []byte) error {
	parsed, err := ParseFrequency(string(text))
	if err != nil {
		return err
	}

	*f = parsed

	return nil
}

// dailyFamily frequencies share one day-range rule and only differ in how
// often they fire within a day.
func (f Frequency) dailyFamily() bool {
	switch f {
	case Daily, TwiceDaily, EveryMorning, EveryEvening, Every8h, Every12h:
		return true
	}

	return false
}
