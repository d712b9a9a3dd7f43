package db

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// HistoryStatus of a reminder response
type HistoryStatus string

// History statuses
const (
	StatusTaken   HistoryStatus = "taken"
	StatusMissed  HistoryStatus = "missed"
	StatusSnoozed HistoryStatus = "snoozed"
)

// HistoryEntry records one response to a reminder. Entries are never changed.
type HistoryEntry struct {
	IDUser       uuid.UUID     `json:"id_user"`
	ID           uuid.UUID     `json:"id"`
	ReminderID   uuid.UUID     `json:"reminder_id"`
	MedicineName string        `json:"medicine_name"`
	Dosage       string        `json:"dosage"`
	Timestamp    time.Time     `json:"timestamp"`
	Status       HistoryStatus `json:"status"`
}

// keys sort chronologically within a user
func (h *HistoryEntry) badgerKey() []byte {
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(h.Timestamp.UnixNano()))

	key := append(badgerPrefixKeyForHistoryUser(h.IDUser), ts...)

	return append(key, h.ID[:]...)
}

func badgerPrefixKeyForHistoryUser(idUser uuid.UUID) []byte {
	return append([]byte("history:"), idUser[:]...)
}
