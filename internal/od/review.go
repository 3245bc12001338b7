package od

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"campusattend/internal/apperr"
	"campusattend/internal/metrics"
	"campusattend/internal/queue"
)

// ReviewOptions carries the optional collaborators of a ReviewQueue.
type ReviewOptions struct {
	Publisher queue.Publisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

// ReviewQueue is the admin side of the lifecycle.
type ReviewQueue struct {
	store   Store
	pub     queue.Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

// NewReviewQueue builds the admin review queue.
func NewReviewQueue(store Store, opts ReviewOptions) *ReviewQueue {
	q := &ReviewQueue{store: store, pub: opts.Publisher, metrics: opts.Metrics, log: opts.Logger, now: opts.Now}
	if q.log == nil {
		q.log = zap.NewNop()
	}
	if q.now == nil {
		q.now = time.Now
	}
	return q
}

// List returns requests newest first; status is pending, approved, rejected,
// all or empty.
func (q *ReviewQueue) List(ctx context.Context, status string) ([]Request, error) {
	st, err := ParseStatusFilter(strings.ToLower(strings.TrimSpace(status)))
	if err != nil {
		return nil, apperr.With(apperr.ErrValidation, err.Error())
	}
	return q.store.List(ctx, st, 0)
}

// Recent returns the n newest requests of any status.
func (q *ReviewQueue) Recent(ctx context.Context, n int) ([]Request, error) {
	return q.store.List(ctx, "", n)
}

// Counts reports requests per status.
func (q *ReviewQueue) Counts(ctx context.Context) (Counts, error) {
	return q.store.Counts(ctx, "")
}

// Get returns one request including its OCR text.
func (q *ReviewQueue) Get(ctx context.Context, id string) (Request, error) {
	req, err := q.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Request{}, apperr.With(apperr.ErrNotFound, "OD request not found")
	}
	return req, err
}

// Decide moves a pending request to approved or rejected. Exactly one of any
// number of concurrent calls for the same id succeeds; the others see
// AlreadyDecided. OCR verification does not gate the decision.
func (q *ReviewQueue) Decide(ctx context.Context, id string, outcome Outcome, notes, decidedBy string) (Request, error) {
	status, err := outcome.Status()
	if err != nil {
		return Request{}, apperr.With(apperr.ErrValidation, err.Error())
	}

	req, err := q.store.Decide(ctx, id, Decision{
		Status:    status,
		Notes:     strings.TrimSpace(notes),
		DecidedBy: decidedBy,
		DecidedAt: q.now().UTC(),
	})
	switch {
	case errors.Is(err, ErrNotFound):
		q.metrics.ODDecision("not_found")
		return Request{}, apperr.With(apperr.ErrNotFound, "OD request not found")
	case errors.Is(err, ErrAlreadyDecided):
		q.metrics.ODDecision("already_decided")
		return Request{}, apperr.With(apperr.ErrAlreadyDecided, "OD request has already been decided")
	case err != nil:
		return Request{}, apperr.Wrap(apperr.ErrInternal, err, "could not record decision")
	}

	q.metrics.ODDecision(string(req.Status))
	q.log.Info("od request decided",
		zap.String("request_id", req.ID),
		zap.String("status", string(req.Status)),
		zap.String("decided_by", decidedBy))
	if err := queue.PublishJSON(ctx, q.pub, queue.TypeODDecided, queue.ODDecided{
		RequestID: req.ID,
		StudentID: req.StudentID,
		Status:    string(req.Status),
		DecidedBy: req.DecidedBy,
		DecidedAt: *req.DecidedAt,
	}); err != nil {
		q.log.Warn("queue publish failed", zap.String("type", queue.TypeODDecided), zap.Error(err))
	}
	return req, nil
}
