package reminder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"git.0xdad.com/tblyler/mymed/apperr"
	"git.0xdad.com/tblyler/mymed/db"
	"git.0xdad.com/tblyler/mymed/logger"
	"git.0xdad.com/tblyler/mymed/metrics"
	"git.0xdad.com/tblyler/mymed/notify"
	"git.0xdad.com/tblyler/mymed/schedule"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var monday = time.Date(2024, time.January, 15, 0, 0, 0, 0, time.Local)

type memoryPersister struct {
	fail      error
	reminders []*db.Reminder
	history   []*db.HistoryEntry
}

func (m *memoryPersister) ListRemindersForUser(idUser uuid.UUID) ([]*db.Reminder, error) {
	return m.reminders, m.fail
}

func (m *memoryPersister) ReplaceRemindersForUser(idUser uuid.UUID, reminders []*db.Reminder) error {
	if m.fail != nil {
		return m.fail
	}

	m.reminders = nil
	for _, r := range reminders {
		c := r.Clone()
		m.reminders = append(m.reminders, &c)
	}

	return nil
}

func (m *memoryPersister) AppendHistory(entry *db.HistoryEntry) error {
	if m.fail != nil {
		return m.fail
	}

	m.history = append(m.history, entry)

	return nil
}

func (m *memoryPersister) ListHistoryForUser(idUser uuid.UUID) ([]*db.HistoryEntry, error) {
	return m.history, m.fail
}

type recordingNotifier struct {
	scheduled []notify.Notification
	cancelled []int
}

func (r *recordingNotifier) Schedule(ctx context.Context, n notify.Notification) error {
	r.scheduled = append(r.scheduled, n)
	return nil
}

func (r *recordingNotifier) Cancel(ctx context.Context, id int) error {
	r.cancelled = append(r.cancelled, id)
	return nil
}

func (r *recordingNotifier) CancelAll(ctx context.Context) error {
	return nil
}

type recordingAlerter struct {
	stopped []uuid.UUID
}

func (r *recordingAlerter) Play(id uuid.UUID) {}

func (r *recordingAlerter) Stop(id uuid.UUID) {
	r.stopped = append(r.stopped, id)
}

func (r *recordingAlerter) Haptic() {}

type recordingWarner struct {
	warned []db.Reminder
}

func (r *recordingWarner) LowSupply(ctx context.Context, reminder db.Reminder) {
	r.warned = append(r.warned, reminder)
}

type fixture struct {
	store    *Store
	persist  *memoryPersister
	notifier *recordingNotifier
	alerter  *recordingAlerter
	warner   *recordingWarner
	metrics  *metrics.Metrics
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		persist:  &memoryPersister{},
		notifier: &recordingNotifier{},
		alerter:  &recordingAlerter{},
		warner:   &recordingWarner{},
		metrics:  metrics.New(),
		now:      monday.Add(8 * time.Hour),
	}

	f.store = New(uuid.New(), f.persist,
		WithNotifier(f.notifier),
		WithAlerter(f.alerter),
		WithWarner(f.warner),
		WithMetrics(f.metrics),
		WithLogger(logger.Discard()),
		WithClock(func() time.Time { return f.now }),
	)

	return f
}

func dailyInput(name string) Input {
	return Input{
		MedicineName: name,
		Dosage:       "1 pill",
		TimeOfDay:    schedule.Clock{Hour: 9},
		Schedule: schedule.Schedule{
			StartDate: monday,
			Frequency: schedule.Daily,
			Duration:  schedule.ForOngoing,
		},
	}
}

func TestAddSchedulesNextNotification(t *testing.T) {
	f := newFixture(t)

	r, err := f.store.Add(context.Background(), dailyInput("Aspirin"))
	if err != nil {
		t.Fatal(err)
	}

	if r.IsActive || r.LastTaken != nil {
		t.Error("new reminders start inactive and untaken")
	}

	if r.IDUser != f.store.UserID() {
		t.Error("reminder belongs to another user")
	}

	if len(f.notifier.scheduled) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notifier.scheduled))
	}

	n := f.notifier.scheduled[0]
	if !n.At.Equal(monday.Add(9*time.Hour)) || n.ID != notify.IDFor(r.ID) {
		t.Errorf("unexpected notification %+v", n)
	}

	f.now = monday.Add(10 * time.Hour)
	if _, err := f.store.Update(context.Background(), r.ID, dailyInput("Aspirin")); err != nil {
		t.Fatal(err)
	}

	if at := f.notifier.scheduled[1].At; !at.Equal(monday.AddDate(0, 0, 1).Add(9 * time.Hour)) {
		t.Errorf("a passed time is scheduled tomorrow, got %v", at)
	}

	if len(f.persist.reminders) != 1 {
		t.Errorf("expected the reminder to be persisted, got %d", len(f.persist.reminders))
	}
}

func TestValidationLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)

	existing, err := f.store.Add(context.Background(), dailyInput("Aspirin"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		edit func(*Input)
	}{
		{"blank name", func(in *Input) { in.MedicineName = "  " }},
		{"blank dosage", func(in *Input) { in.Dosage = "" }},
		{"negative supply", func(in *Input) { in.CurrentSupply = -1 }},
		{"negative threshold", func(in *Input) { in.AlertAt = -1 }},
		{"threshold above supply", func(in *Input) {
			in.RefillTracking = true
			in.CurrentSupply = 2
			in.AlertAt = 3
		}},
		{"custom duration without days", func(in *Input) {
			in.Schedule.Duration = schedule.Duration{Kind: schedule.Custom}
		}},
	}

	for _, tt := range tests {
		in := dailyInput("Ibuprofen")
		tt.edit(&in)

		if _, err := f.store.Add(context.Background(), in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s: add expected validation error, got %v", tt.name, err)
		}

		if _, err := f.store.Update(context.Background(), existing.ID, in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("%s: update expected validation error, got %v", tt.name, err)
		}
	}

	all := f.store.All()
	if len(all) != 1 || all[0].MedicineName != "Aspirin" {
		t.Errorf("state changed: %+v", all)
	}

	if _, err := f.store.Snooze(context.Background(), existing.ID, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for a zero minute snooze, got %v", err)
	}

	if len(f.store.History()) != 0 {
		t.Error("invalid snooze recorded history")
	}
}

func TestValidationReportsEveryField(t *testing.T) {
	err := Input{CurrentSupply: -1}.Validate()
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	for _, field := range []string{"medicine", "dosage", "supply"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("%q missing from %q", field, err)
		}
	}
}

func TestDismissRefill(t *testing.T) {
	f := newFixture(t)

	in := dailyInput("Metformin")
	in.RefillTracking = true
	in.CurrentSupply = 6
	in.AlertAt = 5

	r, err := f.store.Add(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.store.MarkFired(r.ID, f.now); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		supply int
		warned int
	}{
		{5, 1},
		{4, 2},
	}

	for _, tt := range tests {
		dismissed, err := f.store.Dismiss(context.Background(), r.ID)
		if err != nil {
			t.Fatal(err)
		}

		if dismissed.CurrentSupply != tt.supply {
			t.Errorf("supply: got %d, want %d", dismissed.CurrentSupply, tt.supply)
		}

		if len(f.warner.warned) != tt.warned {
			t.Errorf("warnings: got %d, want %d", len(f.warner.warned), tt.warned)
		}

		if dismissed.IsActive || dismissed.LastTaken == nil || !dismissed.LastTaken.Equal(f.now) {
			t.Errorf("dismiss did not record intake: %+v", dismissed)
		}
	}

	if got := testutil.ToFloat64(f.metrics.LowSupply); got != 2 {
		t.Errorf("low supply metric = %v", got)
	}

	history := f.store.History()
	if len(history) != 2 || history[0].Status != db.StatusTaken {
		t.Errorf("unexpected history %+v", history)
	}

	if len(f.alerter.stopped) != 2 {
		t.Errorf("alarm stopped %d times", len(f.alerter.stopped))
	}
}

func TestDismissEmptySupply(t *testing.T) {
	f := newFixture(t)

	in := dailyInput("Metformin")
	in.RefillTracking = true

	r, err := f.store.Add(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}

	dismissed, err := f.store.Dismiss(context.Background(), r.ID)
	if err != nil {
		t.Fatal(err)
	}

	if dismissed.CurrentSupply != 0 || len(f.warner.warned) != 0 {
		t.Errorf("empty supply must not change or warn: supply %d, warnings %d", dismissed.CurrentSupply, len(f.warner.warned))
	}

	if dismissed.LastTaken == nil {
		t.Error("intake not recorded")
	}
}

func TestSnooze(t *testing.T) {
	f := newFixture(t)

	r, err := f.store.Add(context.Background(), dailyInput("Aspirin"))
	if err != nil {
		t.Fatal(err)
	}

	f.now = monday.Add(9*time.Hour + 30*time.Second)
	snoozed, err := f.store.Snooze(context.Background(), r.ID, 10)
	if err != nil {
		t.Fatal(err)
	}

	if snoozed.TimeOfDay != (schedule.Clock{Hour: 9, Minute: 10}) {
		t.Errorf("unexpected time %v", snoozed.TimeOfDay)
	}

	if !snoozed.IsActive {
		t.Error("snoozed reminders stay active")
	}

	if h := f.store.History(); len(h) != 1 || h[0].Status != db.StatusSnoozed {
		t.Errorf("unexpected history %+v", h)
	}

	if got := testutil.ToFloat64(f.metrics.Responses.WithLabelValues("snoozed")); got != 1 {
		t.Errorf("snoozed responses = %v", got)
	}
}

func TestStorageFailureKeepsMutation(t *testing.T) {
	f := newFixture(t)

	r, err := f.store.Add(context.Background(), dailyInput("Aspirin"))
	if err != nil {
		t.Fatal(err)
	}

	f.persist.fail = errors.New("disk full")

	if _, err := f.store.Dismiss(context.Background(), r.ID); !errors.Is(err, apperr.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}

	got, err := f.store.Get(r.ID)
	if err != nil {
		t.Fatal(err)
	}

	if got.LastTaken == nil {
		t.Error("in-memory dismissal was rolled back")
	}

	if _, err := f.store.Add(context.Background(), dailyInput("Ibuprofen")); !errors.Is(err, apperr.ErrStorage) {
		t.Errorf("expected storage error, got %v", err)
	}

	if len(f.store.All()) != 2 {
		t.Error("in-memory add was rolled back")
	}

	if got := testutil.ToFloat64(f.metrics.StorageErrors); got < 2 {
		t.Errorf("storage errors = %v", got)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)

	r, err := f.store.Add(context.Background(), dailyInput("Aspirin"))
	if err != nil {
		t.Fatal(err)
	}

	if !f.store.Owns(r.ID) {
		t.Fatal("store does not own its reminder")
	}

	if err := f.store.Delete(context.Background(), r.ID); err != nil {
		t.Fatal(err)
	}

	if f.store.Owns(r.ID) || len(f.persist.reminders) != 0 {
		t.Error("reminder still present")
	}

	if len(f.notifier.cancelled) != 1 || f.notifier.cancelled[0] != notify.IDFor(r.ID) {
		t.Errorf("notification not cancelled: %v", f.notifier.cancelled)
	}

	for _, err := range []error{
		f.store.Delete(context.Background(), r.ID),
		f.store.MarkFired(r.ID, f.now),
	} {
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	}
}

func TestCopiesAreDetached(t *testing.T) {
	f := newFixture(t)

	r, err := f.store.Add(context.Background(), dailyInput("Aspirin"))
	if err != nil {
		t.Fatal(err)
	}

	if err := f.store.MarkFired(r.ID, f.now); err != nil {
		t.Fatal(err)
	}

	got, _ := f.store.Get(r.ID)
	*got.LastFired = time.Time{}
	got.MedicineName = "changed"

	again, _ := f.store.Get(r.ID)
	if again.MedicineName != "Aspirin" || !again.LastFired.Equal(f.now) {
		t.Errorf("store state was mutated through a copy: %+v", again)
	}
}

func TestDueQueries(t *testing.T) {
	f := newFixture(t)

	weekly := dailyInput("Vitamin D")
	weekly.Schedule.Frequency = schedule.Weekly

	refill := dailyInput("Metformin")
	refill.RefillTracking = true
	refill.CurrentSupply = 30
	refill.AlertAt = 5

	asNeeded := dailyInput("Ibuprofen")
	asNeeded.Schedule.Frequency = schedule.AsNeeded

	for _, in := range []Input{weekly, refill, asNeeded} {
		if _, err := f.store.Add(context.Background(), in); err != nil {
			t.Fatal(err)
		}
	}

	if due := f.store.DueOn(monday.AddDate(0, 0, 7)); len(due) != 2 {
		t.Errorf("expected weekly and daily due, got %d", len(due))
	}

	if due := f.store.DueOn(monday.AddDate(0, 0, 1)); len(due) != 1 || due[0].MedicineName != "Metformin" {
		t.Errorf("expected only the daily reminder, got %+v", due)
	}

	month := f.store.DueInMonth(2024, time.January)
	for _, day := range []int{15, 22, 29} {
		if len(month[day]) != 2 {
			t.Errorf("january %d: expected 2 due, got %d", day, len(month[day]))
		}
	}

	if _, ok := month[14]; ok {
		t.Error("nothing is due before the start date")
	}

	if len(month) != 17 {
		t.Errorf("expected 17 due days, got %d", len(month))
	}

	if refills := f.store.RefillReminders(); len(refills) != 1 || refills[0].CurrentSupply != 30 {
		t.Errorf("unexpected refill reminders %+v", refills)
	}
}

func TestLoadFromBadger(t *testing.T) {
	b, err := db.NewBadger(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	userID := uuid.New()
	now := monday.Add(8 * time.Hour)

	store := New(userID, b, WithLogger(logger.Discard()), WithClock(func() time.Time { return now }))
	r, err := store.Add(context.Background(), dailyInput("Aspirin"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.Dismiss(context.Background(), r.ID); err != nil {
		t.Fatal(err)
	}

	reloaded := New(userID, b, WithLogger(logger.Discard()))
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}

	got, err := reloaded.Get(r.ID)
	if err != nil {
		t.Fatal(err)
	}

	if got.LastTaken == nil || !got.LastTaken.Equal(now) {
		t.Errorf("intake not persisted: %+v", got)
	}

	if h := reloaded.History(); len(h) != 1 || h[0].ReminderID != r.ID {
		t.Errorf("history not persisted: %+v", h)
	}
}

func TestNextOccurrenceFollowsResponses(t *testing.T) {
	f := newFixture(t)

	r, err := f.store.Add(context.Background(), dailyInput("Aspirin"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		at   time.Time
		do   func() error
		want time.Time
	}{
		{
			name: "fired",
			at:   monday.Add(9*time.Hour + 10*time.Second),
			do:   func() error { return f.store.MarkFired(r.ID, f.now) },
			want: monday.AddDate(0, 0, 1).Add(9 * time.Hour),
		},
		{
			name: "snoozed",
			at:   monday.Add(9*time.Hour + 30*time.Second),
			do: func() error {
				_, err := f.store.Snooze(context.Background(), r.ID, 10)
				return err
			},
			want: monday.Add(9*time.Hour + 10*time.Minute),
		},
		{
			name: "upcoming after load",
			at:   monday.Add(9*time.Hour + 11*time.Minute),
			do: func() error {
				f.store.ScheduleUpcoming(context.Background())
				return nil
			},
			want: monday.AddDate(0, 0, 1).Add(9*time.Hour + 10*time.Minute),
		},
	}

	for _, tt := range tests {
		f.now = tt.at
		before := len(f.notifier.scheduled)

		if err := tt.do(); err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}

		if len(f.notifier.scheduled) != before+1 {
			t.Fatalf("%s: expected one more notification, got %d", tt.name, len(f.notifier.scheduled)-before)
		}

		n := f.notifier.scheduled[len(f.notifier.scheduled)-1]
		if !n.At.Equal(tt.want) || n.ID != notify.IDFor(r.ID) {
			t.Errorf("%s: scheduled %v, want %v", tt.name, n.At, tt.want)
		}
	}
}
