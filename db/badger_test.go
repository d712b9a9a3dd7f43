package db

import (
	"errors"
	"testing"
	"time"

	"git.0xdad.com/tblyler/mymed/apperr"
	"git.0xdad.com/tblyler/mymed/schedule"
	"github.com/google/uuid"
)

func openBadger(t *testing.T) *Badger {
	t.Helper()

	b, err := NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open badger: %v", err)
	}

	t.Cleanup(func() {
		if err := b.Close(); err != nil {
			t.Errorf("failed to close badger: %v", err)
		}
	})

	return b
}

func TestUsers(t *testing.T) {
	b := openBadger(t)

	user := &User{
		ID:                   uuid.New(),
		Name:                 "alice",
		Email:                "Alice@example.com",
		PushoverDeviceTokens: map[string]string{"default": "token"},
		CreatedAt:            time.Now(),
	}

	if err := b.AddUser(user); err != nil {
		t.Fatal(err)
	}

	if err := b.AddUser(user); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("duplicate user must fail validation, got %v", err)
	}

	got, err := b.GetUser("alice")
	if err != nil || got.ID != user.ID {
		t.Fatalf("GetUser = %v, %v", got, err)
	}

	if _, err := b.GetUser("bob"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	byEmail, err := b.GetUserByEmail("alice@EXAMPLE.com")
	if err != nil || byEmail.ID != user.ID {
		t.Errorf("GetUserByEmail = %v, %v", byEmail, err)
	}

	byID, err := b.GetUserByID(user.ID)
	if err != nil || byID.Name != "alice" {
		t.Errorf("GetUserByID = %v, %v", byID, err)
	}

	user.TelegramChatID = 42
	if err := b.UpdateUser(user); err != nil {
		t.Fatal(err)
	}

	users, err := b.ListUsers()
	if err != nil || len(users) != 1 || users[0].TelegramChatID != 42 {
		t.Errorf("ListUsers = %v, %v", users, err)
	}

	if err := b.UpdateUser(&User{Name: "nobody"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func newReminder(idUser uuid.UUID, name string) *Reminder {
	return &Reminder{
		IDUser:       idUser,
		ID:           uuid.New(),
		MedicineName: name,
		Dosage:       "1 pill",
		TimeOfDay:    schedule.Clock{Hour: 8},
		Schedule: schedule.Schedule{
			StartDate: time.Date(2024, time.January, 15, 0, 0, 0, 0, time.Local),
			Frequency: schedule.Weekly,
			Duration:  schedule.ForDays(21),
		},
		CreatedAt: time.Now(),
	}
}

func TestReplaceRemindersForUser(t *testing.T) {
	b := openBadger(t)

	alice, bob := uuid.New(), uuid.New()
	a1, a2 := newReminder(alice, "Metformin"), newReminder(alice, "Aspirin")
	b1 := newReminder(bob, "Warfarin")

	if err := b.ReplaceRemindersForUser(alice, []*Reminder{a1, a2}); err != nil {
		t.Fatal(err)
	}

	if err := b.PutReminder(b1); err != nil {
		t.Fatal(err)
	}

	a2.CurrentSupply = 3
	if err := b.ReplaceRemindersForUser(alice, []*Reminder{a2}); err != nil {
		t.Fatal(err)
	}

	got, err := b.ListRemindersForUser(alice)
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 || got[0].ID != a2.ID || got[0].CurrentSupply != 3 {
		t.Fatalf("unexpected reminders %+v", got)
	}

	if got[0].Schedule.Frequency != schedule.Weekly || got[0].Schedule.Duration != schedule.ForDays(21) {
		t.Errorf("schedule not preserved: %+v", got[0].Schedule)
	}

	others, err := b.ListRemindersForUser(bob)
	if err != nil || len(others) != 1 {
		t.Errorf("other user's reminders must survive, got %v %v", others, err)
	}

	if err := b.ReplaceRemindersForUser(alice, []*Reminder{b1}); err == nil {
		t.Error("writing another user's reminder must fail")
	}

	if err := b.RemoveReminder(b1); err != nil {
		t.Fatal(err)
	}

	if others, _ := b.ListRemindersForUser(bob); len(others) != 0 {
		t.Errorf("expected reminder removed, got %v", others)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	b := openBadger(t)

	idUser := uuid.New()
	base := time.Date(2024, time.January, 15, 8, 0, 0, 0, time.Local)

	for i, status := range []HistoryStatus{StatusTaken, StatusSnoozed, StatusTaken} {
		err := b.AppendHistory(&HistoryEntry{
			IDUser:       idUser,
			ID:           uuid.New(),
			MedicineName: "Metformin",
			Timestamp:    base.Add(time.Duration(i) * time.Hour),
			Status:       status,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	history, err := b.ListHistoryForUser(idUser)
	if err != nil {
		t.Fatal(err)
	}

	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}

	for i := 1; i < len(history); i++ {
		if !history[i-1].Timestamp.After(history[i].Timestamp) {
			t.Errorf("entry %d is not newer than entry %d", i-1, i)
		}
	}

	if history[1].Status != StatusSnoozed {
		t.Errorf("unexpected middle status %s", history[1].Status)
	}
}
