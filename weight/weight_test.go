package weight

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"git.0xdad.com/tblyler/mymed/apperr"
	"git.0xdad.com/tblyler/mymed/db"
	"git.0xdad.com/tblyler/mymed/logger"
	"git.0xdad.com/tblyler/mymed/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var monday = time.Date(2024, time.January, 15, 0, 0, 0, 0, time.Local)

func series(weeksAgoKg ...float64) []db.WeightEntry {
	entries := make([]db.WeightEntry, 0, len(weeksAgoKg))
	for i, kg := range weeksAgoKg {
		entries = append(entries, db.WeightEntry{
			ID:            uuid.New(),
			WeekStartDate: monday.AddDate(0, 0, 7*(i-len(weeksAgoKg)+1)),
			WeightKg:      kg,
		})
	}

	return entries
}

func goal(target float64) *db.WeightGoal {
	return &db.WeightGoal{TargetWeightKg: target}
}

func intp(n int) *int {
	return &n
}

func TestComputeInsights(t *testing.T) {
	tests := []struct {
		name    string
		entries []db.WeightEntry
		goal    *db.WeightGoal
		total   float64
		avg     float64
		weeks   *int
		status  Status
	}{
		{"empty", nil, goal(75), 0, 0, nil, NoChange},
		{"losing toward a lower target", series(80, 79, 78), goal(75), -2, -1, intp(3), OnTrack},
		{"no goal", series(80, 79, 78), nil, -2, -1, nil, NoGoal},
		{"single entry", series(80), goal(75), 0, 0, nil, NoChange},
		{"flat", series(80, 80), goal(75), 0, 0, nil, NoChange},
		{"gaining away from a lower target", series(75, 76), goal(70), 1, 1, nil, Gaining},
		{"losing away from a higher target", series(61, 60), goal(65), -1, -1, nil, Gaining},
		{"gaining toward a higher target", series(60, 61), goal(65), 1, 1, intp(4), OnTrack},
		{"goal reached", series(76, 75.05), goal(75), -0.95, -0.95, intp(0), OnTrack},
		{"partial week rounds up", series(80, 79.5, 79), goal(77.9), -1, -0.5, intp(3), OnTrack},
	}

	for _, tt := range tests {
		got := ComputeInsights(tt.entries, tt.goal)

		if math.Abs(got.TotalChange-tt.total) > 1e-9 {
			t.Errorf("%s: total change %v, want %v", tt.name, got.TotalChange, tt.total)
		}

		if math.Abs(got.AverageWeeklyChange-tt.avg) > 1e-9 {
			t.Errorf("%s: average %v, want %v", tt.name, got.AverageWeeklyChange, tt.avg)
		}

		if got.Status != tt.status {
			t.Errorf("%s: status %s, want %s", tt.name, got.Status, tt.status)
		}

		switch {
		case tt.weeks == nil && got.WeeksToGoal != nil:
			t.Errorf("%s: weeks to goal %d, want none", tt.name, *got.WeeksToGoal)
		case tt.weeks != nil && got.WeeksToGoal == nil:
			t.Errorf("%s: weeks to goal missing, want %d", tt.name, *tt.weeks)
		case tt.weeks != nil && *got.WeeksToGoal != *tt.weeks:
			t.Errorf("%s: weeks to goal %d, want %d", tt.name, *got.WeeksToGoal, *tt.weeks)
		}
	}
}

func TestSlowingIsReserved(t *testing.T) {
	for _, start := range []float64{60, 70, 80} {
		for _, end := range []float64{59, 70, 70.05, 81} {
			for _, target := range []float64{55, 70, 90} {
				got := ComputeInsights(series(start, end), goal(target))
				if got.Status == Slowing {
					t.Errorf("%v -> %v toward %v: slowing returned", start, end, target)
				}
			}
		}
	}
}

func TestBestWeek(t *testing.T) {
	entries := series(80, 79.5, 78, 78.2)

	// input order does not matter
	entries[0], entries[3] = entries[3], entries[0]

	got := ComputeInsights(entries, nil)
	if got.BestWeek == nil {
		t.Fatal("expected a best week")
	}

	if !got.BestWeek.WeekStartDate.Equal(monday.AddDate(0, 0, -7)) || math.Abs(got.BestWeek.Change+1.5) > 1e-9 {
		t.Errorf("unexpected best week %+v", got.BestWeek)
	}

	if ComputeInsights(series(80), nil).BestWeek != nil {
		t.Error("a single entry has no best week")
	}
}

func TestAverageUsesWholeWeeks(t *testing.T) {
	entries := []db.WeightEntry{
		{WeekStartDate: monday, WeightKg: 80},
		{WeekStartDate: monday.AddDate(0, 0, 10), WeightKg: 79},
	}

	if got := ComputeInsights(entries, nil).AverageWeeklyChange; got != -1 {
		t.Errorf("ten days count as one week, got average %v", got)
	}
}

func newTracker(t *testing.T) (*Tracker, *metrics.Metrics) {
	t.Helper()

	conn, err := db.OpenSQL("sqlite://" + filepath.Join(t.TempDir(), "weight.db"))
	if err != nil {
		t.Fatal(err)
	}

	if err := db.Migrate(conn); err != nil {
		t.Fatal(err)
	}

	store := db.NewWeightStore(conn)
	t.Cleanup(func() { store.Close() })

	m := metrics.New()
	tracker := NewTracker(uuid.New(), store, m, logger.Discard())
	tracker.now = func() time.Time { return monday.Add(10 * time.Hour) }

	return tracker, m
}

func TestTrackerRecordUpsertsWeek(t *testing.T) {
	ctx := context.Background()
	tracker, m := newTracker(t)

	first, err := tracker.Record(ctx, monday.AddDate(0, 0, 2), 80)
	if err != nil {
		t.Fatal(err)
	}

	if !first.WeekStartDate.Equal(monday) {
		t.Errorf("entry not keyed on monday: %v", first.WeekStartDate)
	}

	second, err := tracker.Record(ctx, monday.AddDate(0, 0, 6), 79.4)
	if err != nil {
		t.Fatal(err)
	}

	if second.ID != first.ID {
		t.Error("same week must update the existing entry")
	}

	if _, err := tracker.Record(ctx, monday.AddDate(0, 0, 7), 79); err != nil {
		t.Fatal(err)
	}

	entries, err := tracker.Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != 2 || entries[0].WeightKg != 79 || entries[1].WeightKg != 79.4 {
		t.Errorf("unexpected entries %+v", entries)
	}

	if got := testutil.ToFloat64(m.WeightEntries); got != 3 {
		t.Errorf("recorded entries metric = %v", got)
	}

	for _, kg := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := tracker.Record(ctx, monday, kg); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%v: expected validation error, got %v", kg, err)
		}
	}

	if err := tracker.Delete(ctx, first.ID); err != nil {
		t.Fatal(err)
	}

	if err := tracker.Delete(ctx, first.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestTrackerGoal(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTracker(t)

	if _, err := tracker.SetGoal(ctx, 75); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("a goal needs a recorded weight, got %v", err)
	}

	if g, err := tracker.Goal(ctx); err != nil || g != nil {
		t.Errorf("expected no goal, got %+v %v", g, err)
	}

	for i, kg := range []float64{80, 79, 78} {
		if _, err := tracker.Record(ctx, monday.AddDate(0, 0, 7*(i-2)), kg); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := tracker.SetGoal(ctx, -75); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	set, err := tracker.SetGoal(ctx, 75)
	if err != nil {
		t.Fatal(err)
	}

	if set.StartWeightKg != 78 || !set.StartDate.Equal(monday) {
		t.Errorf("goal snapshot wrong: %+v", set)
	}

	insight, err := tracker.Insights(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if insight.Status != OnTrack || insight.WeeksToGoal == nil || *insight.WeeksToGoal != 3 {
		t.Errorf("unexpected insight %+v", insight)
	}
}

func TestTrackerWatch(t *testing.T) {
	tracker, _ := newTracker(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan Insight, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		tracker.Watch(ctx, func(insight Insight, err error) {
			if err != nil {
				t.Error(err)
			}
			updates <- insight
		})
	}()

	next := func() Insight {
		select {
		case insight := <-updates:
			return insight
		case <-time.After(5 * time.Second):
			t.Fatal("no insight delivered")
		}
		return Insight{}
	}

	if got := next(); got.Status != NoChange {
		t.Errorf("initial insight %+v", got)
	}

	if _, err := tracker.Record(context.Background(), monday, 80); err != nil {
		t.Fatal(err)
	}

	if got := next(); got.Status != NoGoal {
		t.Errorf("insight after a record %+v", got)
	}

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
