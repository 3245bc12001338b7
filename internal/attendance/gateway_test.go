package attendance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"campusattend/internal/apperr"
	"campusattend/internal/faceclient"
	"campusattend/internal/queue"
	"campusattend/internal/roster"
)

type matcherStub struct {
	result *faceclient.MatchResult
	err    error
	calls  atomic.Int32
}

func (m *matcherStub) Match(_ context.Context, _ []byte, _, _ string) (*faceclient.MatchResult, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	r := *m.result
	return &r, nil
}

type directoryStub map[string]string

func (d directoryStub) Get(id string) (roster.Student, bool) {
	name, ok := d[id]
	return roster.Student{StudentID: id, Name: name}, ok
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newGateway(m Matcher, l Ledger, c *clock, pub queue.Publisher) *Service {
	return NewService(l, m, Options{
		Threshold: 0.5,
		Location:  time.UTC,
		Directory: directoryStub{"23IT56": "Sujithra B"},
		Publisher: pub,
		Now:       c.now,
	})
}

func TestMarkTwiceSameDayKeepsOneRecord(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	ledger := NewMemoryLedger()
	pub := queue.NewInMemory(8)
	svc := newGateway(&matcherStub{result: &faceclient.MatchResult{Matched: true, StudentID: "23IT56", Confidence: 0.82}}, ledger, c, pub)

	first, err := svc.Mark(ctx, []byte("jpeg"), "face.jpg", "23IT56")
	require.NoError(t, err)
	require.Equal(t, OutcomeMarked, first.Outcome)
	require.Equal(t, "Sujithra B", first.StudentName)
	require.Equal(t, "2024-03-04", first.Record.Date)
	require.Equal(t, 0.82, first.Record.Confidence)

	c.set(time.Date(2024, 3, 4, 9, 5, 0, 0, time.UTC))
	second, err := svc.Mark(ctx, []byte("jpeg"), "face.jpg", "23IT56")
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadyMarked, second.Outcome)
	require.Equal(t, first.Record.ID, second.Record.ID)
	require.Equal(t, first.Record.Timestamp, second.Record.Timestamp)

	n, err := svc.TodayCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, pub.Len())
}

func TestConcurrentMarksProduceOneRecord(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	ledger := NewMemoryLedger()
	svc := newGateway(&matcherStub{result: &faceclient.MatchResult{Matched: true, StudentID: "23IT56", Confidence: 0.9}}, ledger, c, nil)

	const n = 32
	var marked, already atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Mark(ctx, []byte("jpeg"), "face.jpg", "23IT56")
			if err != nil {
				return
			}
			switch res.Outcome {
			case OutcomeMarked:
				marked.Add(1)
			case OutcomeAlreadyMarked:
				already.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, marked.Load())
	require.EqualValues(t, n-1, already.Load())
	count, err := ledger.CountForDate(ctx, "2024-03-04")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestBelowThresholdIsRejectedWithoutWrite(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	ledger := NewMemoryLedger()
	svc := newGateway(&matcherStub{result: &faceclient.MatchResult{Matched: true, StudentID: "23IT56", Confidence: 0.49}}, ledger, c, nil)

	res, err := svc.Recognize(ctx, []byte("jpeg"), "face.jpg")
	require.NoError(t, err)
	require.Equal(t, OutcomeRejected, res.Outcome)
	require.Nil(t, res.Record)

	count, _ := ledger.CountForDate(ctx, "2024-03-04")
	require.Zero(t, count)
}

func TestMarkRejectsForeignFace(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	ledger := NewMemoryLedger()
	svc := newGateway(&matcherStub{result: &faceclient.MatchResult{Matched: true, StudentID: "23IT63", Confidence: 0.95}}, ledger, c, nil)

	res, err := svc.Mark(ctx, []byte("jpeg"), "face.jpg", "23IT56")
	require.NoError(t, err)
	require.Equal(t, OutcomeRejected, res.Outcome)
	require.Contains(t, res.Reason, "signed-in")

	_, err = ledger.ForStudentOnDate(ctx, "23IT63", "2024-03-04")
	require.ErrorIs(t, err, ErrNoRecord)
}

func TestMatcherFailureIsNetworkError(t *testing.T) {
	c := &clock{t: time.Now()}
	svc := newGateway(&matcherStub{err: errors.New("connection refused")}, NewMemoryLedger(), c, nil)

	_, err := svc.Recognize(context.Background(), []byte("jpeg"), "face.jpg")
	require.ErrorIs(t, err, apperr.ErrNetwork)
}

func TestEmptyImageNeverReachesMatcher(t *testing.T) {
	m := &matcherStub{result: &faceclient.MatchResult{Matched: true, StudentID: "23IT56", Confidence: 1}}
	svc := newGateway(m, NewMemoryLedger(), &clock{t: time.Now()}, nil)

	_, err := svc.Recognize(context.Background(), nil, "")
	require.ErrorIs(t, err, apperr.ErrValidation)
	require.Zero(t, m.calls.Load())
}

func TestDateFollowsConfiguredTimezone(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	c := &clock{t: time.Date(2024, 3, 4, 20, 0, 0, 0, time.UTC)}
	svc := NewService(NewMemoryLedger(), &matcherStub{}, Options{Location: loc, Now: c.now})
	require.Equal(t, "2024-03-05", svc.Today())
}
