package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"git.0xdad.com/tblyler/mymed/apperr"
	"git.0xdad.com/tblyler/mymed/schedule"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// weightChannel is the postgres NOTIFY channel carrying changed user ids
const weightChannel = "weight_changes"

// WeightEntry is one weekly weight sample
type WeightEntry struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	WeekStartDate time.Time `json:"week_start_date"`
	WeightKg      float64   `json:"weight_kg"`
}

// WeightGoal is a snapshot taken when a user sets a target weight
type WeightGoal struct {
	UserID         uuid.UUID `json:"user_id"`
	TargetWeightKg float64   `json:"target_weight"`
	StartDate      time.Time `json:"start_date"`
	StartWeightKg  float64   `json:"start_weight"`
}

type weightRow struct {
	ID            string  `db:"id"`
	UserID        string  `db:"user_id"`
	WeekStartDate string  `db:"week_start_date"`
	WeightKg      float64 `db:"weight_kg"`
}

type revisionRow struct {
	UserID   string `db:"user_id"`
	Revision int64  `db:"revision"`
}

type goalRow struct {
	UserID         string  `db:"user_id"`
	TargetWeightKg float64 `db:"target_weight_kg"`
	StartDate      string  `db:"start_date"`
	StartWeightKg  float64 `db:"start_weight_kg"`
}

// WeightStore keeps weight entries and goals in a SQL database and
// announces changes per user. Every write bumps the user's revision so
// changes made by other processes are seen through Poll or Listen.
type WeightStore struct {
	db *sqlx.DB

	mu          sync.Mutex
	subscribers map[uuid.UUID]map[chan struct{}]struct{}
	// revisions last seen per user id, nil before the first Poll
	revisions map[string]int64
}

// NewWeightStore on an open, migrated connection
func NewWeightStore(conn *sqlx.DB) *WeightStore {
	return &WeightStore{
		db:          conn,
		subscribers: make(map[uuid.UUID]map[chan struct{}]struct{}),
	}
}

// Close the underlying connection
func (w *WeightStore) Close() error {
	return w.db.Close()
}

// Driver of the underlying connection, DriverSQLite or DriverPostgres
func (w *WeightStore) Driver() string {
	return w.db.DriverName()
}

// write runs stmt and bumps the revision of userID in one transaction,
// then tells local subscribers
func (w *WeightStore) write(ctx context.Context, userID uuid.UUID, op string, stmt func(tx *sqlx.Tx) error) error {
	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Storage(op, err)
	}

	defer tx.Rollback()

	if err := stmt(tx); err != nil {
		return err
	}

	var revision int64
	err = tx.GetContext(ctx, &revision, tx.Rebind(`
		INSERT INTO weight_revisions (user_id, revision) VALUES (?, 1)
		ON CONFLICT (user_id) DO UPDATE SET revision = weight_revisions.revision + 1
		RETURNING revision
	`), userID.String())
	if err != nil {
		return apperr.Storage("bump weight revision", err)
	}

	if w.Driver() == DriverPostgres {
		if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, weightChannel, userID.String()); err != nil {
			return apperr.Storage("notify weight change", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Storage(op, err)
	}

	w.mu.Lock()
	if w.revisions != nil && w.revisions[userID.String()] < revision {
		w.revisions[userID.String()] = revision
	}
	w.mu.Unlock()

	w.changed(userID)

	return nil
}

// InsertEntry adds a weight entry
func (w *WeightStore) InsertEntry(ctx context.Context, entry *WeightEntry) error {
	return w.write(ctx, entry.UserID, "insert weight entry", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO weight_entries (id, user_id, week_start_date, weight_kg)
			VALUES (?, ?, ?, ?)
		`), entry.ID.String(), entry.UserID.String(), entry.WeekStartDate.Format(schedule.DateLayout), entry.WeightKg)
		if err != nil {
			return apperr.Storage("insert weight entry", err)
		}

		return nil
	})
}

// UpdateEntry changes the week and weight of an existing entry
func (w *WeightStore) UpdateEntry(ctx context.Context, entry *WeightEntry) error {
	return w.write(ctx, entry.UserID, "update weight entry", func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, tx.Rebind(`
			UPDATE weight_entries SET week_start_date = ?, weight_kg = ?
			WHERE id = ? AND user_id = ?
		`), entry.WeekStartDate.Format(schedule.DateLayout), entry.WeightKg, entry.ID.String(), entry.UserID.String())
		if err != nil {
			return apperr.Storage("update weight entry", err)
		}

		return requireRow(result, "weight entry "+entry.ID.String())
	})
}

// DeleteEntry removes an entry of a user
func (w *WeightStore) DeleteEntry(ctx context.Context, userID, id uuid.UUID) error {
	return w.write(ctx, userID, "delete weight entry", func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, tx.Rebind(`
			DELETE FROM weight_entries WHERE id = ? AND user_id = ?
		`), id.String(), userID.String())
		if err != nil {
			return apperr.Storage("delete weight entry", err)
		}

		return requireRow(result, "weight entry "+id.String())
	})
}

// ListEntriesForUser returns entries newest week first
func (w *WeightStore) ListEntriesForUser(ctx context.Context, userID uuid.UUID) ([]WeightEntry, error) {
	rows := []weightRow{}
	err := w.db.SelectContext(ctx, &rows, w.db.Rebind(`
		SELECT id, user_id, week_start_date, weight_kg
		FROM weight_entries WHERE user_id = ? ORDER BY week_start_date DESC
	`), userID.String())
	if err != nil {
		return nil, apperr.Storage("list weight entries", err)
	}

	entries := make([]WeightEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.entry()
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// GetGoal of a user, nil when no goal was set
func (w *WeightStore) GetGoal(ctx context.Context, userID uuid.UUID) (*WeightGoal, error) {
	row := goalRow{}
	err := w.db.GetContext(ctx, &row, w.db.Rebind(`
		SELECT user_id, target_weight_kg, start_date, start_weight_kg
		FROM weight_goals WHERE user_id = ?
	`), userID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, apperr.Storage("get weight goal", err)
	}

	return row.goal()
}

// PutGoal replaces the goal of a user
func (w *WeightStore) PutGoal(ctx context.Context, goal *WeightGoal) error {
	return w.write(ctx, goal.UserID, "put weight goal", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO weight_goals (user_id, target_weight_kg, start_date, start_weight_kg)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET
				target_weight_kg = excluded.target_weight_kg,
				start_date = excluded.start_date,
				start_weight_kg = excluded.start_weight_kg
		`), goal.UserID.String(), goal.TargetWeightKg, goal.StartDate.Format(time.RFC3339), goal.StartWeightKg)
		if err != nil {
			return apperr.Storage("put weight goal", err)
		}

		return nil
	})
}

// Subscribe to change notices for a user. A notice only means the data may
// have changed and should be fetched again. The channel closes with ctx.
func (w *WeightStore) Subscribe(ctx context.Context, userID uuid.UUID) <-chan struct{} {
	ch := make(chan struct{}, 1)

	w.mu.Lock()
	if w.subscribers[userID] == nil {
		w.subscribers[userID] = make(map[chan struct{}]struct{})
	}
	w.subscribers[userID][ch] = struct{}{}
	w.mu.Unlock()

	go func() {
		<-ctx.Done()

		w.mu.Lock()
		delete(w.subscribers[userID], ch)
		if len(w.subscribers[userID]) == 0 {
			delete(w.subscribers, userID)
		}
		w.mu.Unlock()

		close(ch)
	}()

	return ch
}

// Poll announces the users whose weights changed since the previous poll,
// including changes written by other processes. The first poll only
// records the current revisions.
func (w *WeightStore) Poll(ctx context.Context) error {
	rows := []revisionRow{}
	if err := w.db.SelectContext(ctx, &rows, `SELECT user_id, revision FROM weight_revisions`); err != nil {
		return apperr.Storage("poll weight revisions", err)
	}

	w.mu.Lock()
	first := w.revisions == nil
	if first {
		w.revisions = make(map[string]int64, len(rows))
	}

	var changed []uuid.UUID
	for _, row := range rows {
		if seen, ok := w.revisions[row.UserID]; ok && row.Revision <= seen {
			continue
		}

		w.revisions[row.UserID] = row.Revision
		if first {
			continue
		}

		if id, err := uuid.Parse(row.UserID); err == nil {
			changed = append(changed, id)
		}
	}
	w.mu.Unlock()

	for _, id := range changed {
		w.changed(id)
	}

	return nil
}

// Listen announces changes sent over postgres NOTIFY by any process until
// ctx is done. dsn must be the postgres DSN the store was opened with.
func (w *WeightStore) Listen(ctx context.Context, dsn string) error {
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, nil)
	defer listener.Close()

	if err := listener.Listen(weightChannel); err != nil {
		return apperr.Storage("listen for weight changes", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case n := <-listener.Notify:
			// nil after a reconnect, notices may have been lost
			if n == nil {
				w.changedAll()
				continue
			}

			if id, err := uuid.Parse(n.Extra); err == nil {
				w.changed(id)
			}

		case <-time.After(90 * time.Second):
			go listener.Ping()
		}
	}
}

func (w *WeightStore) changed(userID uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	announce(w.subscribers[userID])
}

func (w *WeightStore) changedAll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, subscribers := range w.subscribers {
		announce(subscribers)
	}
}

func announce(subscribers map[chan struct{}]struct{}) {
	for ch := range subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (r weightRow) entry() (WeightEntry, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return WeightEntry{}, fmt.Errorf("failed to parse weight entry id %q: %w", r.ID, err)
	}

	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return WeightEntry{}, fmt.Errorf("failed to parse weight entry user id %q: %w", r.UserID, err)
	}

	week, err := schedule.ParseDate(r.WeekStartDate)
	if err != nil {
		return WeightEntry{}, fmt.Errorf("failed to parse week start date %q: %w", r.WeekStartDate, err)
	}

	return WeightEntry{ID: id, UserID: userID, WeekStartDate: week, WeightKg: r.WeightKg}, nil
}

func (r goalRow) goal() (*WeightGoal, error) {
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse weight goal user id %q: %w", r.UserID, err)
	}

	start, err := time.Parse(time.RFC3339, r.StartDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse weight goal start date %q: %w", r.StartDate, err)
	}

	return &WeightGoal{
		UserID:         userID,
		TargetWeightKg: r.TargetWeightKg,
		StartDate:      start.Local(),
		StartWeightKg:  r.StartWeightKg,
	}, nil
}

func requireRow(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return apperr.Storage("rows affected", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, what)
	}

	return nil
}
