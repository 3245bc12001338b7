package od

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const requestColumns = `id, student_id, student_name, activity_type, activity_name,
	to_char(event_date, 'YYYY-MM-DD'), COALESCE(event_venue, ''), COALESCE(organized_by, ''),
	COALESCE(coordinator_name, ''), COALESCE(coordinator_contact, ''), od_reason,
	document_ref, document_mime, COALESCE(ocr_text, ''), verified_by_ocr, status,
	COALESCE(admin_notes, ''), created_at, decided_at, COALESCE(decided_by, '')`

// Repository stores OD requests in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (Request, error) {
	var (
		r      Request
		status string
	)
	err := row.Scan(&r.ID, &r.StudentID, &r.StudentName, &r.ActivityType, &r.ActivityName,
		&r.EventDate, &r.EventVenue, &r.OrganizedBy, &r.CoordinatorName, &r.CoordinatorContact,
		&r.Reason, &r.DocumentRef, &r.DocumentMIME, &r.OCRText, &r.VerifiedByOCR, &status,
		&r.AdminNotes, &r.CreatedAt, &r.DecidedAt, &r.DecidedBy)
	r.Status = Status(status)
	return r, err
}

func (r *Repository) Create(ctx context.Context, req Request) (Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.Status = StatusPending
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO od_requests (id, student_id, student_name, activity_type, activity_name, event_date,
			event_venue, organized_by, coordinator_name, coordinator_contact, od_reason,
			document_ref, document_mime, ocr_text, verified_by_ocr, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''),
			$11, $12, $13, NULLIF($14, ''), $15, $16, $17)
	`, req.ID, req.StudentID, req.StudentName, req.ActivityType, req.ActivityName, req.EventDate,
		req.EventVenue, req.OrganizedBy, req.CoordinatorName, req.CoordinatorContact, req.Reason,
		req.DocumentRef, req.DocumentMIME, req.OCRText, req.VerifiedByOCR, string(req.Status), req.CreatedAt)
	if err != nil {
		return Request{}, fmt.Errorf("insert od request: %w", err)
	}
	return req, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Request{}, ErrNotFound
	}
	req, err := scanRequest(r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM od_requests WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	return req, err
}

func (r *Repository) List(ctx context.Context, status Status, limit int) ([]Request, error) {
	query := `SELECT ` + requestColumns + ` FROM od_requests`
	args := []any{}
	if status != "" {
		args = append(args, string(status))
		query += ` WHERE status = $1`
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	return r.query(ctx, query, args...)
}

func (r *Repository) ListForStudent(ctx context.Context, studentID string, limit int) ([]Request, error) {
	query := `SELECT ` + requestColumns + ` FROM od_requests WHERE student_id = $1 ORDER BY created_at DESC`
	args := []any{studentID}
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $2`
	}
	return r.query(ctx, query, args...)
}

func (r *Repository) query(ctx context.Context, query string, args ...any) ([]Request, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *Repository) Counts(ctx context.Context, studentID string) (Counts, error) {
	query := `SELECT status, COUNT(*) FROM od_requests`
	args := []any{}
	if studentID != "" {
		query += ` WHERE student_id = $1`
		args = append(args, studentID)
	}
	query += ` GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Counts{}, err
	}
	defer rows.Close()
	var c Counts
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return Counts{}, err
		}
		c.add(Status(status), n)
	}
	return c, rows.Err()
}

// Decide applies d only while the request is pending. When no row changes,
// a second lookup tells a missing request from a decided one.
func (r *Repository) Decide(ctx context.Context, id string, d Decision) (Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Request{}, ErrNotFound
	}
	req, err := scanRequest(r.db.QueryRowContext(ctx, `
		UPDATE od_requests
		SET status = $2, admin_notes = NULLIF($3, ''), decided_by = $4, decided_at = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING `+requestColumns,
		id, string(d.Status), d.Notes, d.DecidedBy, d.DecidedAt))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Request{}, fmt.Errorf("decide od request: %w", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM od_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
		return Request{}, err
	}
	if !exists {
		return Request{}, ErrNotFound
	}
	return Request{}, ErrAlreadyDecided
}
