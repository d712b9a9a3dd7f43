package schedule

import (
	"fmt"
	"strconv"
	"strings"

	"git.0xdad.com/tblyler/mymed/apperr"
)

// DurationKind bounds how many occurrences a schedule has
type DurationKind int

// Duration kinds
const (
	Ongoing DurationKind = iota + 1
	Days7
	Days14
	Days30
	Days90
	Custom
)

var durationNames = map[DurationKind]string{
	Ongoing: "ongoing",
	Days7:   "7days",
	Days14:  "14days",
	Days30:  "30days",
	Days90:  "90days",
	Custom:  "custom",
}

// Duration of a schedule. Days is only meaningful for Custom.
type Duration struct {
	Kind DurationKind
	Days int
}

// Fixed duration constructors
var (
	ForOngoing = Duration{Kind: Ongoing}
	For7Days   = Duration{Kind: Days7}
	For14Days  = Duration{Kind: Days14}
	For30Days  = Duration{Kind: Days30}
	For90Days  = Duration{Kind: Days90}
)

// ForDays creates a custom duration of n days
func ForDays(n int) Duration {
	return Duration{Kind: Custom, Days: n}
}

// ParseDuration accepts "ongoing", "7days", "14days", "30days", "90days",
// "custom" (requires customDays) or a bare day count such as "10" or "10days".
func ParseDuration(tag string, customDays int) (Duration, error) {
	tag = strings.TrimSpace(tag)
	for kind, name := range durationNames {
		if name != tag {
			continue
		}

		d := Duration{Kind: kind}
		if kind == Custom {
			d.Days = customDays
		}

		return d, d.Validate()
	}

	n, err := strconv.Atoi(strings.TrimSuffix(tag, "days"))
	if err != nil {
		return Duration{}, apperr.Invalid("duration", "%q is not a known duration", tag)
	}

	d := ForDays(n)

	return d, d.Validate()
}

// Validate the custom day count invariant
func (d Duration) Validate() error {
	if _, ok := durationNames[d.Kind]; !ok {
		return apperr.Invalid("duration", "kind %d is not known", int(d.Kind))
	}

	if d.Kind == Custom && d.Days < 1 {
		return apperr.Invalid("custom_duration", "must be a positive number of days, got %d", d.Days)
	}

	return nil
}

// Tag of the duration kind as stored
func (d Duration) Tag() string {
	return durationNames[d.Kind]
}

func (d Duration) String() string {
	if d.Kind == Custom {
		return fmt.Sprintf("%d days", d.Days)
	}

	if name, ok := durationNames[d.Kind]; ok {
		return name
	}

	return fmt.Sprintf("Duration(%d)", int(d.Kind))
}

// days a daily-family schedule stays active, including the start day
func (d Duration) days() int {
	switch d.Kind {
	case Days7:
		return 7
	case Days14:
		return 14
	case Days30:
		return 30
	case Days90:
		return 90
	case Custom:
		return d.Days
	}

	return 0
}

func (d Duration) weeklyOccurrences() int {
	switch d.Kind {
	case Days7:
		return 1
	case Days14:
		return 2
	case Days30:
		return 4
	case Days90:
		return 12
	case Custom:
		return ceilDiv(d.Days, 7)
	}

	return 0
}

// monthlyOccurrences has no mapping for the 7 and 14 day kinds: such
// schedules are never due.
func (d Duration) monthlyOccurrences() int {
	switch d.Kind {
	case Days30:
		return 1
	case Days90:
		return 3
	case Custom:
		return ceilDiv(d.Days, 30)
	}

	return 0
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}

	return (n + d - 1) / d
}
