package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"campusattend/internal/apperr"
	"campusattend/internal/faceclient"
	"campusattend/internal/metrics"
	"campusattend/internal/queue"
	"campusattend/internal/roster"
)

// Outcome of one recognition attempt.
type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomeMarked
	OutcomeAlreadyMarked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMarked:
		return "marked"
	case OutcomeAlreadyMarked:
		return "already_marked"
	default:
		return "rejected"
	}
}

// Matcher is the face matcher client.
type Matcher interface {
	Match(ctx context.Context, image []byte, filename, claimedStudentID string) (*faceclient.MatchResult, error)
}

// Directory resolves display names for matched students.
type Directory interface {
	Get(studentID string) (roster.Student, bool)
}

// Result is what the gateway reports back to the caller.
type Result struct {
	Outcome     Outcome
	StudentID   string
	StudentName string
	Confidence  float64
	Reason      string
	Record      *Record
}

// Options carries the optional collaborators of a Service.
type Options struct {
	Threshold float64
	Location  *time.Location
	Directory Directory
	Publisher queue.Publisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

// Service is the recognition gateway: matcher first, then one atomic ledger write.
type Service struct {
	ledger    Ledger
	matcher   Matcher
	threshold float64
	loc       *time.Location
	dir       Directory
	pub       queue.Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

// NewService creates a gateway over a ledger and a matcher.
func NewService(ledger Ledger, matcher Matcher, opts Options) *Service {
	s := &Service{
		ledger:    ledger,
		matcher:   matcher,
		threshold: opts.Threshold,
		loc:       opts.Location,
		dir:       opts.Directory,
		pub:       opts.Publisher,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		now:       opts.Now,
	}
	if s.threshold <= 0 || s.threshold > 1 {
		s.threshold = 0.5
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Today is the ledger date key for the current instant.
func (s *Service) Today() string {
	return s.now().In(s.loc).Format(DateLayout)
}

// Recognize handles the anonymous kiosk path.
func (s *Service) Recognize(ctx context.Context, image []byte, filename string) (Result, error) {
	return s.process(ctx, image, filename, "")
}

// Mark handles the authenticated path; the matched face must belong to studentID.
func (s *Service) Mark(ctx context.Context, image []byte, filename, studentID string) (Result, error) {
	if studentID == "" {
		return Result{}, apperr.With(apperr.ErrForbidden, "student identity required")
	}
	return s.process(ctx, image, filename, studentID)
}

func (s *Service) process(ctx context.Context, image []byte, filename, claimed string) (Result, error) {
	if len(image) == 0 {
		return Result{}, apperr.With(apperr.ErrValidation, "no image provided")
	}

	start := time.Now()
	match, err := s.matcher.Match(ctx, image, filename, claimed)
	s.metrics.MatcherLatency(time.Since(start))
	if err != nil {
		s.metrics.Recognition("error")
		s.log.Warn("face matcher call failed", zap.Error(err))
		if errors.Is(err, apperr.ErrNetwork) || errors.Is(err, apperr.ErrValidation) {
			return Result{}, err
		}
		return Result{}, apperr.Wrap(apperr.ErrNetwork, err, "face recognition failed")
	}

	res := Result{Confidence: match.Confidence, StudentID: match.StudentID}
	switch {
	case !match.Matched || match.StudentID == "":
		res.Reason = "face not recognized"
	case match.Confidence < s.threshold:
		res.Reason = fmt.Sprintf("confidence %.2f below threshold %.2f", match.Confidence, s.threshold)
	case claimed != "" && match.StudentID != claimed:
		res.Reason = "face does not match the signed-in student"
	}
	if res.Reason != "" {
		s.metrics.Recognition(OutcomeRejected.String())
		s.log.Info("recognition rejected",
			zap.String("student_id", match.StudentID),
			zap.Float64("confidence", match.Confidence),
			zap.String("reason", res.Reason))
		return res, nil
	}

	if s.dir != nil {
		if st, ok := s.dir.Get(match.StudentID); ok {
			res.StudentName = st.Name
		}
	}

	now := s.now()
	rec, err := s.ledger.InsertIfAbsent(ctx, Record{
		StudentID:  match.StudentID,
		Date:       now.In(s.loc).Format(DateLayout),
		Timestamp:  now.UTC(),
		Confidence: match.Confidence,
		Status:     StatusPresent,
	})
	switch {
	case errors.Is(err, ErrAlreadyMarked):
		res.Outcome = OutcomeAlreadyMarked
		res.Record = &rec
		s.metrics.Recognition(res.Outcome.String())
		return res, nil
	case err != nil:
		s.metrics.Recognition("error")
		return Result{}, apperr.Wrap(apperr.ErrInternal, err, "could not record attendance")
	}

	res.Outcome = OutcomeMarked
	res.Record = &rec
	s.metrics.Recognition(res.Outcome.String())
	s.log.Info("attendance marked",
		zap.String("student_id", rec.StudentID),
		zap.String("date", rec.Date),
		zap.Float64("confidence", rec.Confidence))

	if err := queue.PublishJSON(ctx, s.pub, queue.TypeAttendanceMarked, queue.AttendanceMarked{
		RecordID:   rec.ID,
		StudentID:  rec.StudentID,
		Date:       rec.Date,
		Confidence: rec.Confidence,
		Timestamp:  rec.Timestamp,
	}); err != nil {
		s.log.Warn("queue publish failed", zap.String("type", queue.TypeAttendanceMarked), zap.Error(err))
	}
	return res, nil
}

// TodayFor returns the student's record for today, if any.
func (s *Service) TodayFor(ctx context.Context, studentID string) (*Record, error) {
	rec, err := s.ledger.ForStudentOnDate(ctx, studentID, s.Today())
	if errors.Is(err, ErrNoRecord) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// TodayCount is the number of students marked today.
func (s *Service) TodayCount(ctx context.Context) (int, error) {
	return s.ledger.CountForDate(ctx, s.Today())
}
