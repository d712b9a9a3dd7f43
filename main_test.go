package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"git.0xdad.com/tblyler/mymed/auth"
	"git.0xdad.com/tblyler/mymed/config"
	"git.0xdad.com/tblyler/mymed/db"
	"git.0xdad.com/tblyler/mymed/logger"
	"git.0xdad.com/tblyler/mymed/metrics"
	"git.0xdad.com/tblyler/mymed/notify"
	"git.0xdad.com/tblyler/mymed/schedule"
	"git.0xdad.com/tblyler/mymed/trigger"
	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type recordingNotifier struct {
	scheduled []notify.Notification
}

func (r *recordingNotifier) Schedule(ctx context.Context, n notify.Notification) error {
	r.scheduled = append(r.scheduled, n)
	return nil
}

func (r *recordingNotifier) Cancel(ctx context.Context, id int) error { return nil }

func (r *recordingNotifier) CancelAll(ctx context.Context) error { return nil }

func TestFormatMonth(t *testing.T) {
	due := map[int][]db.Reminder{3: {{MedicineName: "Aspirin"}}}

	out := formatMonth(2024, time.January, due)

	if !strings.Contains(out, "January 2024") {
		t.Errorf("missing title in %q", out)
	}

	lines := strings.Split(out, "\n")
	if len(lines) != 7 {
		t.Fatalf("January 2024 spans 5 weeks, got %d lines: %q", len(lines), out)
	}

	// January 1st 2024 is a Monday
	if !strings.HasPrefix(lines[2], " 1") {
		t.Errorf("first week should start with the 1st, got %q", lines[2])
	}

	if !strings.Contains(lines[len(lines)-1], "31") {
		t.Errorf("last week should end with the 31st, got %q", lines[len(lines)-1])
	}
}

func TestParseKg(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want float64
		err  bool
	}{
		{in: "80.5", want: 80.5},
		{in: "72", want: 72},
		{in: "heavy", err: true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseKg(tc.in)
			if (err != nil) != tc.err {
				t.Fatalf("parseKg(%q) error = %v", tc.in, err)
			}

			if got != tc.want {
				t.Errorf("parseKg(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestOptionalToken(t *testing.T) {
	token, err := optionalToken("", fmt.Errorf("wrapped: %w", config.ErrEnvVariableNotSet))
	if token != "" || err != nil {
		t.Errorf("unset token = %q, %v", token, err)
	}

	token, err = optionalToken("abc", nil)
	if token != "abc" || err != nil {
		t.Errorf("set token = %q, %v", token, err)
	}

	boom := errors.New("boom")
	if _, err := optionalToken("", boom); !errors.Is(err, boom) {
		t.Errorf("other errors must pass through, got %v", err)
	}
}

func TestNotifierWithoutChannelsFallsBack(t *testing.T) {
	a := &app{logger: logger.Discard()}
	console := &recordingNotifier{}

	user := &db.User{ID: uuid.New(), Name: "alice", PushoverDeviceTokens: map[string]string{"phone": "token"}}

	// no pushover application token and no bot
	n := a.notifierFor(user, "", nil, console)

	r := db.Reminder{
		ID:           uuid.New(),
		IDUser:       user.ID,
		MedicineName: "Aspirin",
		Dosage:       "100mg",
		TimeOfDay:    schedule.Clock{Hour: 8},
	}

	if err := n.Schedule(context.Background(), notify.ReminderNotification(r, time.Now())); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if len(console.scheduled) != 1 {
		t.Fatalf("expected the console fallback to deliver once, got %d", len(console.scheduled))
	}
}

type scriptedLines struct {
	lines []string
	end   error
}

func (s *scriptedLines) Readline() (string, error) {
	if len(s.lines) == 0 {
		return "", s.end
	}

	line := s.lines[0]
	s.lines = s.lines[1:]

	return line, nil
}

func TestConsoleCommands(t *testing.T) {
	take := uuid.New()
	snooze := uuid.New()
	loggedOut := false

	c := newConsole(&scriptedLines{
		lines: []string{
			"",
			"take " + take.String(),
			"take not-a-reminder",
			"snooze",
			"dance " + take.String(),
			"  snooze   " + snooze.String() + "  ",
			"logout",
		},
		end: io.EOF,
	}, func() { loggedOut = true })

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	var got []notify.Action
	for action := range c.Actions() {
		got = append(got, action)
	}

	if err := <-done; err != nil {
		t.Fatalf("end of input must not stop run, got %v", err)
	}

	want := []notify.Action{
		{ReminderID: take, Kind: notify.ActionTake},
		{ReminderID: snooze, Kind: notify.ActionSnooze},
	}

	if len(got) != len(want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("action %d = %v, want %v", i, got[i], want[i])
		}
	}

	if !loggedOut {
		t.Error("expected logout to sign out")
	}
}

func TestConsoleInterrupt(t *testing.T) {
	c := newConsole(&scriptedLines{end: readline.ErrInterrupt}, nil)

	if err := c.Run(context.Background()); !errors.Is(err, errAborted) {
		t.Errorf("expected errAborted, got %v", err)
	}

	if _, ok := <-c.Actions(); ok {
		t.Error("expected the actions to close")
	}
}

func TestConsoleLogoutWithoutSession(t *testing.T) {
	c := newConsole(&scriptedLines{}, nil)

	if err := c.handle(context.Background(), "logout"); err == nil {
		t.Error("logout needs a session")
	}
}

type tokenConfig struct {
	config.Config
	token string
}

func (c tokenConfig) JWTSecret() (string, error) { return "secret", nil }

func (c tokenConfig) SessionToken() string { return c.token }

func TestLookupUserResumesSessionToken(t *testing.T) {
	b, err := db.NewBadger(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	session, err := auth.NewLocal(b, []byte("secret")).Register("alice", "alice@example.com", "hunter22")
	if err != nil {
		t.Fatal(err)
	}

	a := &app{config: tokenConfig{token: session.Token}, badger: b, logger: logger.Discard()}

	user, err := a.lookupUser()
	if err != nil {
		t.Fatal(err)
	}

	if user.ID != session.User.ID {
		t.Errorf("resumed %s, want %s", user.ID, session.User.ID)
	}

	a.config = tokenConfig{token: session.Token + "x"}
	if _, err := a.lookupUser(); err == nil {
		t.Error("a tampered token must not resolve a user")
	}
}

func TestWatcherFollowsSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := db.NewBadger(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	weights, err := db.OpenSQL("sqlite://" + t.TempDir() + "/weight.db")
	if err != nil {
		t.Fatal(err)
	}

	if err := db.Migrate(weights); err != nil {
		t.Fatal(err)
	}

	store := db.NewWeightStore(weights)
	defer store.Close()

	m := metrics.New()
	a := &app{badger: b, logger: logger.Discard(), metrics: m}
	sched := trigger.New(trigger.Config{}, notify.NewBell(io.Discard), a.logger, trigger.WithMetrics(m))

	w := &watcher{
		app:     a,
		sched:   sched,
		weights: store,
		bell:    notify.NewBell(io.Discard),
		notifierFor: func(*db.User) notify.Notifier {
			return &recordingNotifier{}
		},
		cancels: make(map[uuid.UUID]func()),
	}

	provider := auth.NewLocal(b, []byte("secret"))
	unsubscribe := w.follow(ctx, provider)
	defer unsubscribe()

	if got := testutil.ToFloat64(m.WatchedUsers); got != 0 {
		t.Fatalf("nobody is signed in, watched %v users", got)
	}

	if _, err := provider.Register("alice", "alice@example.com", "hunter22"); err != nil {
		t.Fatal(err)
	}

	if got := testutil.ToFloat64(m.WatchedUsers); got != 1 {
		t.Fatalf("expected the signed in user to be watched, got %v", got)
	}

	provider.Logout()

	if got := testutil.ToFloat64(m.WatchedUsers); got != 0 {
		t.Errorf("expected logout to unwatch, got %v", got)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.cancels) != 0 {
		t.Errorf("expected no watched users, got %d", len(w.cancels))
	}
}
