package od

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var requestCols = []string{
	"id", "student_id", "student_name", "activity_type", "activity_name", "event_date",
	"event_venue", "organized_by", "coordinator_name", "coordinator_contact", "od_reason",
	"document_ref", "document_mime", "ocr_text", "verified_by_ocr", "status",
	"admin_notes", "created_at", "decided_at", "decided_by",
}

func TestRepositoryDecideUpdatesPendingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.NewString()
	at := time.Date(2024, 2, 12, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE od_requests")).
		WithArgs(id, "rejected", "wrong dates", "admin", at).
		WillReturnRows(sqlmock.NewRows(requestCols).AddRow(
			id, "23IT56", "Sujithra B", "technical", "Hackathon", "2024-02-10",
			"", "", "", "", "reason", "ref", "application/pdf", "Hackathon 2024 Certificate", true, "rejected",
			"wrong dates", at.Add(-time.Hour), at, "admin"))

	req, err := NewRepository(db).Decide(context.Background(), id, Decision{Status: StatusRejected, Notes: "wrong dates", DecidedBy: "admin", DecidedAt: at})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, req.Status)
	require.Equal(t, at, *req.DecidedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryDecideDistinguishesMissingFromDecided(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)
	id := uuid.NewString()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE od_requests")).WillReturnRows(sqlmock.NewRows(requestCols))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	_, err = repo.Decide(context.Background(), id, Decision{Status: StatusApproved, DecidedAt: time.Now()})
	require.ErrorIs(t, err, ErrAlreadyDecided)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE od_requests")).WillReturnRows(sqlmock.NewRows(requestCols))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	_, err = repo.Decide(context.Background(), id, Decision{Status: StatusApproved, DecidedAt: time.Now()})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Decide(context.Background(), "not-a-uuid", Decision{Status: StatusApproved})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCountsAndList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) FROM od_requests WHERE student_id = $1 GROUP BY status")).
		WithArgs("23IT56").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow("pending", 2).AddRow("approved", 1))
	c, err := repo.Counts(context.Background(), "23IT56")
	require.NoError(t, err)
	require.Equal(t, Counts{Pending: 2, Approved: 1}, c)

	mock.ExpectQuery(regexp.QuoteMeta("FROM od_requests WHERE status = $1 ORDER BY created_at DESC")).
		WithArgs("pending").
		WillReturnRows(sqlmock.NewRows(requestCols))
	list, err := repo.List(context.Background(), StatusPending, 0)
	require.NoError(t, err)
	require.Empty(t, list)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositorySeedAndList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, a := range DefaultActivities {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO activities")).
			WithArgs(a.Name, a.Type, a.Description).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, type")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "type", "description"}).
			AddRow(1, "National Level Hackathon", "hackathon", "24-hour coding competition").
			AddRow(2, "Athletics Meet", "sports", ""))

	repo := NewActivityRepository(db)
	require.NoError(t, repo.Seed(context.Background()))
	list, err := repo.Activities(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "hackathon", list[0].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}
