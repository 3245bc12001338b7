package store

import (
	"context"
	"database/sql"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL CHECK (role IN ('student', 'admin')),
		student_id    TEXT,
		name          TEXT NOT NULL DEFAULT '',
		department    TEXT NOT NULL DEFAULT '',
		year          TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id          UUID PRIMARY KEY,
		student_id  TEXT NOT NULL,
		attend_date DATE NOT NULL,
		marked_at   TIMESTAMPTZ NOT NULL,
		confidence  DOUBLE PRECISION NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
		status      TEXT NOT NULL DEFAULT 'present',
		UNIQUE (student_id, attend_date)
	)`,
	`CREATE INDEX IF NOT EXISTS attendance_records_date_idx ON attendance_records (attend_date)`,
	`CREATE TABLE IF NOT EXISTS od_requests (
		id                  UUID PRIMARY KEY,
		student_id          TEXT NOT NULL,
		student_name        TEXT NOT NULL DEFAULT '',
		activity_type       TEXT NOT NULL,
		activity_name       TEXT NOT NULL,
		event_date          DATE NOT NULL,
		event_venue         TEXT,
		organized_by        TEXT,
		coordinator_name    TEXT,
		coordinator_contact TEXT,
		od_reason           TEXT NOT NULL,
		document_ref        TEXT NOT NULL,
		document_mime       TEXT NOT NULL,
		ocr_text            TEXT,
		verified_by_ocr     BOOLEAN NOT NULL DEFAULT FALSE,
		status              TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
		admin_notes         TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		decided_at          TIMESTAMPTZ,
		decided_by          TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS od_requests_student_idx ON od_requests (student_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS od_requests_status_idx ON od_requests (status, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS activities (
		id          SERIAL PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		type        TEXT NOT NULL,
		description TEXT
	)`,
}

// Migrate creates the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
