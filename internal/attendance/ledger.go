package attendance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StatusPresent is the only status the ledger ever stores.
const StatusPresent = "present"

// DateLayout is the calendar-day key of the ledger.
const DateLayout = "2006-01-02"

var (
	// ErrAlreadyMarked is returned together with the existing record.
	ErrAlreadyMarked = errors.New("attendance already marked for this date")
	ErrNoRecord      = errors.New("attendance record not found")
)

// Record is one attendance mark. Records are never updated or deleted.
type Record struct {
	ID         string    `json:"id"`
	StudentID  string    `json:"student_id"`
	Date       string    `json:"date"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	Status     string    `json:"status"`
}

// Ledger stores at most one record per student per date.
type Ledger interface {
	// InsertIfAbsent writes rec unless a record for (StudentID, Date) exists,
	// in which case it returns that record and ErrAlreadyMarked.
	InsertIfAbsent(ctx context.Context, rec Record) (Record, error)
	ForStudentOnDate(ctx context.Context, studentID, date string) (Record, error)
	CountForDate(ctx context.Context, date string) (int, error)
}

type ledgerKey struct {
	studentID string
	date      string
}

// MemoryLedger is the in-process ledger used by STORE_BACKEND=memory.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[ledgerKey]Record
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[ledgerKey]Record)}
}

func (m *MemoryLedger) InsertIfAbsent(_ context.Context, rec Record) (Record, error) {
	rec = withDefaults(rec)
	k := ledgerKey{rec.StudentID, rec.Date}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.records[k]; ok {
		return existing, ErrAlreadyMarked
	}
	m.records[k] = rec
	return rec, nil
}

func (m *MemoryLedger) ForStudentOnDate(_ context.Context, studentID, date string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[ledgerKey{studentID, date}]
	if !ok {
		return Record{}, ErrNoRecord
	}
	return rec, nil
}

func (m *MemoryLedger) CountForDate(_ context.Context, date string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.records {
		if k.date == date {
			n++
		}
	}
	return n, nil
}

func withDefaults(rec Record) Record {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = StatusPresent
	}
	return rec
}
