package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repository persists the ledger in Postgres. The unique constraint on
// (student_id, attend_date) is what makes InsertIfAbsent atomic.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertIfAbsent writes the record or returns the one already present.
func (r *Repository) InsertIfAbsent(ctx context.Context, rec Record) (Record, error) {
	rec = withDefaults(rec)
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, student_id, attend_date, marked_at, confidence, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id, attend_date) DO NOTHING
		RETURNING id
	`, rec.ID, rec.StudentID, rec.Date, rec.Timestamp, rec.Confidence, rec.Status)

	var id string
	err := row.Scan(&id)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("insert attendance: %w", err)
	}

	existing, err := r.ForStudentOnDate(ctx, rec.StudentID, rec.Date)
	if err != nil {
		return Record{}, fmt.Errorf("load existing attendance: %w", err)
	}
	return existing, ErrAlreadyMarked
}

// ForStudentOnDate returns the student's record for one day.
func (r *Repository) ForStudentOnDate(ctx context.Context, studentID, date string) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, to_char(attend_date, 'YYYY-MM-DD'), marked_at, confidence, status
		FROM attendance_records
		WHERE student_id = $1 AND attend_date = $2
	`, studentID, date)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.Date, &rec.Timestamp, &rec.Confidence, &rec.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNoRecord
		}
		return Record{}, err
	}
	return rec, nil
}

// CountForDate counts the records of one day.
func (r *Repository) CountForDate(ctx context.Context, date string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance_records WHERE attend_date = $1`, date).Scan(&n)
	return n, err
}
