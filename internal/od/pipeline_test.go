package od

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"campusattend/internal/apperr"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n")

type ocrStub struct {
	text  string
	err   error
	calls int
}

func (o *ocrStub) Extract(context.Context, []byte, string, string) (string, error) {
	o.calls++
	return o.text, o.err
}

type docsStub struct {
	calls     int
	names     []string
	deleted   []string
	deleteErr error
}

func (d *docsStub) Put(_ context.Context, name string, _ []byte, _ string) (string, error) {
	d.calls++
	d.names = append(d.names, name)
	return "ref/" + name, nil
}

func (d *docsStub) Delete(_ context.Context, ref string) error {
	d.deleted = append(d.deleted, ref)
	return d.deleteErr
}

type failingCreateStore struct {
	*MemoryStore
}

func (failingCreateStore) Create(context.Context, Request) (Request, error) {
	return Request{}, errors.New("connection reset")
}

func validInput() SubmitInput {
	return SubmitInput{
		StudentID:    "23IT56",
		StudentName:  "Sujithra B",
		ActivityType: "technical",
		ActivityName: "Hackathon",
		EventDate:    "2024-02-10",
		Reason:       "Representing the department",
		FileName:     "certificate.PDF",
		Document:     pdfBytes,
	}
}

func newPipeline(store Store, docs *docsStub, ocr *ocrStub) *Pipeline {
	return NewPipeline(store, docs, ocr, PipelineOptions{
		Now: func() time.Time { return time.Date(2024, 2, 12, 10, 0, 0, 0, time.UTC) },
	})
}

func TestSubmitHackathonIsVerifiedAndPending(t *testing.T) {
	store := NewMemoryStore()
	ocr := &ocrStub{text: "Hackathon 2024 Certificate"}
	sub, err := newPipeline(store, &docsStub{}, ocr).Submit(context.Background(), validInput())
	require.NoError(t, err)

	require.True(t, sub.Verified)
	require.Equal(t, "technical", sub.DetectedActivity)
	require.Equal(t, StatusPending, sub.Request.Status)
	require.Equal(t, "application/pdf", sub.Request.DocumentMIME)
	require.Contains(t, sub.Request.DocumentRef, "od_23IT56_20240212_100000_")

	stored, err := store.Get(context.Background(), sub.Request.ID)
	require.NoError(t, err)
	require.Equal(t, "Hackathon 2024 Certificate", stored.OCRText)
}

func TestSubmitValidationHappensBeforeAnyExternalCall(t *testing.T) {
	cases := map[string]func(*SubmitInput){
		"missing reason":    func(in *SubmitInput) { in.Reason = "  " },
		"missing name":      func(in *SubmitInput) { in.ActivityName = "" },
		"bad date":          func(in *SubmitInput) { in.EventDate = "10/02/2024" },
		"no document":       func(in *SubmitInput) { in.Document = nil },
		"too large":         func(in *SubmitInput) { in.Document = append(append([]byte{}, pdfBytes...), make([]byte, DefaultMaxDocumentBytes)...) },
		"bad extension":     func(in *SubmitInput) { in.FileName = "certificate.docx" },
		"content mismatch":  func(in *SubmitInput) { in.FileName = "certificate.png" },
		"missing file name": func(in *SubmitInput) { in.FileName = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			store := NewMemoryStore()
			docs := &docsStub{}
			ocr := &ocrStub{text: "Hackathon"}
			in := validInput()
			mutate(&in)

			_, err := newPipeline(store, docs, ocr).Submit(context.Background(), in)
			require.ErrorIs(t, err, apperr.ErrValidation)
			require.Zero(t, ocr.calls)
			require.Zero(t, docs.calls)

			all, _ := store.List(context.Background(), "", 0)
			require.Empty(t, all)
		})
	}
}

func TestSubmitMissingFieldNamesTheField(t *testing.T) {
	in := validInput()
	in.ActivityType = ""
	_, err := newPipeline(NewMemoryStore(), &docsStub{}, &ocrStub{}).Submit(context.Background(), in)
	require.EqualError(t, err, "Missing required field: activity_type")
}

func TestSubmitOCRFailureStoresUnverified(t *testing.T) {
	store := NewMemoryStore()
	ocr := &ocrStub{err: apperr.Wrap(apperr.ErrNetwork, errors.New("timeout"), "")}
	sub, err := newPipeline(store, &docsStub{}, ocr).Submit(context.Background(), validInput())
	require.NoError(t, err)
	require.False(t, sub.Verified)
	require.Contains(t, sub.Message, "manual review")
	require.Equal(t, StatusPending, sub.Request.Status)

	counts, _ := store.Counts(context.Background(), "23IT56")
	require.Equal(t, 1, counts.Pending)
}

func TestSubmitUnrelatedTextIsUnverified(t *testing.T) {
	sub, err := newPipeline(NewMemoryStore(), &docsStub{}, &ocrStub{text: "grocery list: milk, eggs"}).
		Submit(context.Background(), validInput())
	require.NoError(t, err)
	require.False(t, sub.Verified)
	require.Equal(t, StatusPending, sub.Request.Status)
}

func TestSubmitAcceptsPNG(t *testing.T) {
	in := validInput()
	in.FileName = "scan.png"
	in.Document = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	sub, err := newPipeline(NewMemoryStore(), &docsStub{}, &ocrStub{text: "Certificate"}).Submit(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "image/png", sub.Request.DocumentMIME)
}

func TestSubmitSaveFailureDiscardsDocument(t *testing.T) {
	docs := &docsStub{}
	store := failingCreateStore{NewMemoryStore()}
	_, err := newPipeline(store, docs, &ocrStub{text: "Hackathon"}).Submit(context.Background(), validInput())
	require.ErrorIs(t, err, apperr.ErrInternal)

	require.Len(t, docs.names, 1)
	require.Equal(t, []string{"ref/" + docs.names[0]}, docs.deleted)
}

func TestSubmitSaveFailureLogsOrphanWhenDeleteFails(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	docs := &docsStub{deleteErr: errors.New("bucket unavailable")}
	p := NewPipeline(failingCreateStore{NewMemoryStore()}, docs, &ocrStub{text: "Hackathon"}, PipelineOptions{Logger: zap.New(core)})

	_, err := p.Submit(context.Background(), validInput())
	require.ErrorIs(t, err, apperr.ErrInternal)

	entries := logs.FilterMessage("orphaned od document").All()
	require.Len(t, entries, 1)
	require.Equal(t, "ref/"+docs.names[0], entries[0].ContextMap()["ref"])
}
