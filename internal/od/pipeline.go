package od

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"campusattend/internal/apperr"
	"campusattend/internal/docstore"
	"campusattend/internal/metrics"
	"campusattend/internal/queue"
)

// DefaultMaxDocumentBytes bounds uploaded documents.
const DefaultMaxDocumentBytes = 10 * 1024 * 1024

var allowedDocuments = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// OCR extracts text from a document.
type OCR interface {
	Extract(ctx context.Context, doc []byte, filename, mimeType string) (string, error)
}

// SubmitInput is the OD form plus the uploaded document.
type SubmitInput struct {
	StudentID          string `json:"student_id" validate:"required"`
	StudentName        string `json:"student_name"`
	ActivityType       string `json:"activity_type" validate:"required,max=64"`
	ActivityName       string `json:"activity_name" validate:"required,max=200"`
	EventDate          string `json:"event_date" validate:"required,datetime=2006-01-02"`
	EventVenue         string `json:"event_venue" validate:"max=200"`
	OrganizedBy        string `json:"organized_by" validate:"max=200"`
	CoordinatorName    string `json:"coordinator_name" validate:"max=120"`
	CoordinatorContact string `json:"coordinator_contact" validate:"max=120"`
	Reason             string `json:"od_reason" validate:"required,max=2000"`
	FileName           string `json:"od_file" validate:"required"`
	Document           []byte `json:"-"`
}

// Submission is the result reported to the student.
type Submission struct {
	Request          Request
	Verified         bool
	Message          string
	DetectedActivity string
}

// PipelineOptions carries the optional collaborators of a Pipeline.
type PipelineOptions struct {
	MaxDocumentBytes int64
	Keywords         []string
	MinKeywordScore  int
	Validator        *validator.Validate
	Publisher        queue.Publisher
	Metrics          *metrics.Metrics
	Logger           *zap.Logger
	Now              func() time.Time
}

// Pipeline validates, stores, verifies and persists OD requests.
type Pipeline struct {
	store    Store
	docs     docstore.Store
	ocr      OCR
	verifier *Verifier
	maxBytes int64
	validate *validator.Validate
	pub      queue.Publisher
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

// NewPipeline builds the submission pipeline.
func NewPipeline(store Store, docs docstore.Store, ocr OCR, opts PipelineOptions) *Pipeline {
	p := &Pipeline{
		store:    store,
		docs:     docs,
		ocr:      ocr,
		verifier: NewVerifier(opts.Keywords, opts.MinKeywordScore),
		maxBytes: opts.MaxDocumentBytes,
		validate: opts.Validator,
		pub:      opts.Publisher,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		now:      opts.Now,
	}
	if p.maxBytes <= 0 {
		p.maxBytes = DefaultMaxDocumentBytes
	}
	if p.validate == nil {
		p.validate = validator.New()
	}
	p.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Submit runs the pipeline. Every validation happens before any external call;
// an OCR failure leaves the request unverified instead of failing it.
func (p *Pipeline) Submit(ctx context.Context, in SubmitInput) (Submission, error) {
	mimeType, ext, err := p.check(&in)
	if err != nil {
		return Submission{}, err
	}

	now := p.now()
	name := fmt.Sprintf("od_%s_%s_%s%s", in.StudentID, now.UTC().Format("20060102_150405"), uuid.NewString()[:8], ext)
	ref, err := p.docs.Put(ctx, name, in.Document, mimeType)
	if err != nil {
		p.log.Error("document store failed", zap.String("student_id", in.StudentID), zap.Error(err))
		return Submission{}, apperr.Wrap(apperr.ErrNetwork, err, "could not store document")
	}

	var verdict Verification
	text, err := p.ocr.Extract(ctx, in.Document, name, mimeType)
	if err != nil {
		p.log.Warn("ocr failed; storing request unverified", zap.String("student_id", in.StudentID), zap.Error(err))
		verdict = Verification{Message: "Text extraction unavailable; request stored for manual review"}
	} else {
		verdict = p.verifier.Verify(text, in.ActivityName)
	}

	req, err := p.store.Create(ctx, Request{
		StudentID:          in.StudentID,
		StudentName:        in.StudentName,
		ActivityType:       in.ActivityType,
		ActivityName:       in.ActivityName,
		EventDate:          in.EventDate,
		EventVenue:         in.EventVenue,
		OrganizedBy:        in.OrganizedBy,
		CoordinatorName:    in.CoordinatorName,
		CoordinatorContact: in.CoordinatorContact,
		Reason:             in.Reason,
		DocumentRef:        ref,
		DocumentMIME:       mimeType,
		OCRText:            text,
		VerifiedByOCR:      verdict.Verified,
		CreatedAt:          now.UTC(),
	})
	if err != nil {
		p.discard(ref, in.StudentID)
		return Submission{}, apperr.Wrap(apperr.ErrInternal, err, "could not save od request")
	}

	p.metrics.ODSubmitted(req.VerifiedByOCR)
	p.log.Info("od request submitted",
		zap.String("request_id", req.ID),
		zap.String("student_id", req.StudentID),
		zap.Bool("verified_by_ocr", req.VerifiedByOCR))
	if err := queue.PublishJSON(ctx, p.pub, queue.TypeODSubmitted, queue.ODSubmitted{
		RequestID:    req.ID,
		StudentID:    req.StudentID,
		ActivityName: req.ActivityName,
		Verified:     req.VerifiedByOCR,
		CreatedAt:    req.CreatedAt,
	}); err != nil {
		p.log.Warn("queue publish failed", zap.String("type", queue.TypeODSubmitted), zap.Error(err))
	}

	return Submission{
		Request:          req,
		Verified:         verdict.Verified,
		Message:          verdict.Message,
		DetectedActivity: verdict.Category,
	}, nil
}

// check validates the form and the document, returning the sniffed MIME type
// and the normalised extension.
func (p *Pipeline) check(in *SubmitInput) (string, string, error) {
	in.ActivityType = strings.TrimSpace(in.ActivityType)
	in.ActivityName = strings.TrimSpace(in.ActivityName)
	in.EventDate = strings.TrimSpace(in.EventDate)
	in.Reason = strings.TrimSpace(in.Reason)

	if err := p.validate.Struct(in); err != nil {
		return "", "", validationError(err)
	}
	if len(in.Document) == 0 {
		return "", "", apperr.With(apperr.ErrValidation, "No file uploaded")
	}
	if int64(len(in.Document)) > p.maxBytes {
		return "", "", apperr.With(apperr.ErrValidation, fmt.Sprintf("File too large; the limit is %d MB", p.maxBytes/(1024*1024)))
	}

	ext := strings.ToLower(filepath.Ext(in.FileName))
	want, ok := allowedDocuments[ext]
	if !ok {
		return "", "", apperr.With(apperr.ErrValidation, "Invalid file format. Please upload PDF or image files.")
	}
	if !mimetype.Detect(in.Document).Is(want) {
		return "", "", apperr.With(apperr.ErrValidation, "File content does not match its extension")
	}
	return want, ext, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Wrap(apperr.ErrValidation, err, "")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return apperr.With(apperr.ErrValidation, "Missing required field: "+fe.Field())
	case "datetime":
		return apperr.With(apperr.ErrValidation, fe.Field()+" must be a date in YYYY-MM-DD format")
	case "max":
		return apperr.With(apperr.ErrValidation, fe.Field()+" is too long")
	}
	return apperr.With(apperr.ErrValidation, "invalid "+fe.Field())
}

// ListForStudent returns a student's requests, newest first.
func (p *Pipeline) ListForStudent(ctx context.Context, studentID string, limit int) ([]Request, error) {
	return p.store.ListForStudent(ctx, studentID, limit)
}

// StudentCounts reports a student's requests per status.
func (p *Pipeline) StudentCounts(ctx context.Context, studentID string) (Counts, error) {
	return p.store.Counts(ctx, studentID)
}

// discard removes a document whose request could not be saved. It runs on a
// fresh context so a cancelled submit still cleans up.
func (p *Pipeline) discard(ref, studentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.docs.Delete(ctx, ref); err != nil {
		p.log.Error("orphaned od document",
			zap.String("ref", ref),
			zap.String("student_id", studentID),
			zap.Error(err))
		return
	}
	p.log.Warn("discarded od document after failed save", zap.String("ref", ref), zap.String("student_id", studentID))
}
