package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"git.0xdad.com/tblyler/mymed/apperr"
	"github.com/dgraph-io/badger"
	"github.com/google/uuid"
)

// Badger db implementation
type Badger struct {
	db       *badger.DB
	cancelGC func()
	wg       sync.WaitGroup
}

// NewBadger creates a new badger instance for the given path
func NewBadger(dbPath string) (*Badger, error) {
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db at path %s: %w", dbPath, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Badger{
		db:       db,
		cancelGC: cancel,
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				for b.db.RunValueLogGC(0.5) == nil && ctx.Err() == nil {
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return b, nil
}

// Close the database
func (b *Badger) Close() error {
	b.cancelGC()
	b.wg.Wait()

	return b.db.Close()
}

// AddUser to the database
func (b *Badger) AddUser(user *User) error {
	return b.db.Update(func(tx *badger.Txn) error {
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("failed to JSON marshal user: %w", err)
		}

		key := user.badgerKey()
		if _, err = tx.Get(key); err == nil {
			return fmt.Errorf("%w: user %s already exists", apperr.ErrValidation, user.Name)
		}

		return tx.Set(key, data)
	})
}

// UpdateUser in the database, the user must already exist
func (b *Badger) UpdateUser(user *User) error {
	return b.db.Update(func(tx *badger.Txn) error {
		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("failed to JSON marshal user: %w", err)
		}

		key := user.badgerKey()
		if _, err = tx.Get(key); err != nil {
			return notFound(err, "user "+user.Name)
		}

		return tx.Set(key, data)
	})
}

// GetUser from the database
func (b *Badger) GetUser(username string) (user *User, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		item, err := tx.Get(badgerKeyForUsername(username))
		if err != nil {
			return notFound(err, "user "+username)
		}

		user = &User{}

		return item.Value(func(val []byte) error {
			err = json.Unmarshal(val, user)
			if err != nil {
				return fmt.Errorf("failed to unmarshal user value for username %s: %w", username, err)
			}

			return nil
		})
	})

	if err != nil {
		user = nil
	}

	return
}

// FindUser returns the first user accepted by match
func (b *Badger) FindUser(match func(*User) bool) (*User, error) {
	users, err := b.ListUsers()
	if err != nil {
		return nil, err
	}

	for _, user := range users {
		if match(user) {
			return user, nil
		}
	}

	return nil, fmt.Errorf("%w: no matching user", apperr.ErrNotFound)
}

// GetUserByEmail from the database, case insensitive
func (b *Badger) GetUserByEmail(email string) (*User, error) {
	return b.FindUser(func(u *User) bool {
		return u.Email != "" && strings.EqualFold(u.Email, email)
	})
}

// GetUserByID from the database
func (b *Badger) GetUserByID(id uuid.UUID) (*User, error) {
	return b.FindUser(func(u *User) bool {
		return u.ID == id
	})
}

// ListUsers from the database
func (b *Badger) ListUsers() (users []*User, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("user:")

		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			err := item.Value(func(val []byte) error {
				user := &User{}
				err := json.Unmarshal(val, user)
				if err != nil {
					return fmt.Errorf("failed to unmarshal user value for user key %s: %w", string(item.Key()), err)
				}

				users = append(users, user)

				return nil
			})

			if err != nil {
				return err
			}
		}

		return nil
	})

	return
}

// PutReminder adds or replaces a single reminder
func (b *Badger) PutReminder(reminder *Reminder) error {
	return b.db.Update(func(tx *badger.Txn) error {
		data, err := json.Marshal(reminder)
		if err != nil {
			return fmt.Errorf("failed to JSON marshal reminder: %w", err)
		}

		return tx.Set(reminder.badgerKey(), data)
	})
}

// RemoveReminder from the database
func (b *Badger) RemoveReminder(reminder *Reminder) error {
	return b.db.Update(func(tx *badger.Txn) error {
		return tx.Delete(reminder.badgerKey())
	})
}

// ReplaceRemindersForUser writes the complete reminder set of a user in one
// transaction. Reminders missing from the set are deleted.
func (b *Badger) ReplaceRemindersForUser(idUser uuid.UUID, reminders []*Reminder) error {
	return b.db.Update(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = badgerPrefixKeyForReminderUser(idUser)

		var stale [][]byte

		it := tx.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range stale {
			if err := tx.Delete(key); err != nil {
				return fmt.Errorf("failed to delete reminder key %x: %w", key, err)
			}
		}

		for _, reminder := range reminders {
			if reminder.IDUser != idUser {
				return fmt.Errorf("reminder %s belongs to user %s, not %s", reminder.ID, reminder.IDUser, idUser)
			}

			data, err := json.Marshal(reminder)
			if err != nil {
				return fmt.Errorf("failed to JSON marshal reminder: %w", err)
			}

			if err = tx.Set(reminder.badgerKey(), data); err != nil {
				return err
			}
		}

		return nil
	})
}

// ListRemindersForUser from the database
func (b *Badger) ListRemindersForUser(idUser uuid.UUID) (reminders []*Reminder, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerPrefixKeyForReminderUser(idUser)

		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			err := item.Value(func(val []byte) error {
				reminder := &Reminder{}
				err := json.Unmarshal(val, reminder)
				if err != nil {
					return fmt.Errorf("failed to unmarshal reminder value for reminder key %x: %w", item.Key(), err)
				}

				reminders = append(reminders, reminder)

				return nil
			})

			if err != nil {
				return err
			}
		}

		return nil
	})

	return
}

// AppendHistory to the database
func (b *Badger) AppendHistory(entry *HistoryEntry) error {
	return b.db.Update(func(tx *badger.Txn) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to JSON marshal history entry: %w", err)
		}

		return tx.Set(entry.badgerKey(), data)
	})
}

// ListHistoryForUser from the database, newest first
func (b *Badger) ListHistoryForUser(idUser uuid.UUID) (history []*HistoryEntry, err error) {
	err = b.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerPrefixKeyForHistoryUser(idUser)

		it := tx.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			err := item.Value(func(val []byte) error {
				entry := &HistoryEntry{}
				err := json.Unmarshal(val, entry)
				if err != nil {
					return fmt.Errorf("failed to unmarshal history value for key %x: %w", item.Key(), err)
				}

				history = append(history, entry)

				return nil
			})

			if err != nil {
				return err
			}
		}

		return nil
	})

	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}

	return
}

func notFound(err error, what string) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, what)
	}

	return fmt.Errorf("failed to get %s: %w", what, err)
}
