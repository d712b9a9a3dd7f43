package weight

import (
	"math"
	"sort"
	"time"

	"git.0xdad.com/tblyler/mymed/db"
	"git.0xdad.com/tblyler/mymed/schedule"
)

// Status of progress toward a weight goal
type Status string

// Statuses. Slowing is reserved for clients that read it, ComputeInsights
// never returns it.
const (
	OnTrack  Status = "on_track"
	Slowing  Status = "slowing"
	Gaining  Status = "gaining"
	NoChange Status = "no_change"
	NoGoal   Status = "no_goal"
)

// goalTolerance in kg under which a goal counts as reached
const goalTolerance = 0.1

// Week is the change between a week and the one recorded before it
type Week struct {
	WeekStartDate time.Time `json:"week_start_date"`
	Change        float64   `json:"change"`
}

// Insight summarizes a weight series. Every change is later minus earlier,
// so losing weight gives negative values.
type Insight struct {
	TotalChange         float64 `json:"total_change"`
	AverageWeeklyChange float64 `json:"average_weekly_change"`
	BestWeek            *Week   `json:"best_week"`
	WeeksToGoal         *int    `json:"weeks_to_goal"`
	Status              Status  `json:"status"`
}

// ComputeInsights derives the trend of entries, in any order, and progress
// toward goal when one is set
func ComputeInsights(entries []db.WeightEntry, goal *db.WeightGoal) Insight {
	if len(entries) == 0 {
		return Insight{Status: NoChange}
	}

	sorted := append([]db.WeightEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].WeekStartDate.Before(sorted[j].WeekStartDate)
	})

	first, last := sorted[0], sorted[len(sorted)-1]

	insight := Insight{
		TotalChange: last.WeightKg - first.WeightKg,
	}

	for i := 1; i < len(sorted); i++ {
		change := sorted[i].WeightKg - sorted[i-1].WeightKg
		if insight.BestWeek == nil || change < insight.BestWeek.Change {
			insight.BestWeek = &Week{WeekStartDate: sorted[i].WeekStartDate, Change: change}
		}
	}

	totalWeeks := schedule.DaysBetween(first.WeekStartDate, last.WeekStartDate) / 7
	if totalWeeks < 1 {
		totalWeeks = 1
	}
	insight.AverageWeeklyChange = insight.TotalChange / float64(totalWeeks)

	if goal == nil {
		insight.Status = NoGoal
		return insight
	}

	avg := insight.AverageWeeklyChange
	if avg == 0 {
		insight.Status = NoChange
		return insight
	}

	remaining := last.WeightKg - goal.TargetWeightKg

	switch {
	case math.Abs(remaining) < goalTolerance:
		insight.Status = OnTrack
		insight.WeeksToGoal = weeks(0)

	case remaining > 0 && avg < 0:
		insight.Status = OnTrack
		insight.WeeksToGoal = weeks(int(math.Ceil(remaining / math.Abs(avg))))

	case remaining < 0 && avg > 0:
		insight.Status = OnTrack
		insight.WeeksToGoal = weeks(int(math.Ceil(math.Abs(remaining) / avg)))

	default:
		insight.Status = Gaining
	}

	return insight
}

func weeks(n int) *int {
	return &n
}
