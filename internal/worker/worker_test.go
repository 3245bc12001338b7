package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"campusattend/internal/queue"
)

func TestHandleDecodesKnownEvents(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	w := New(zap.New(core))
	ctx := context.Background()
	q := queue.NewInMemory(4)

	require.NoError(t, queue.PublishJSON(ctx, q, queue.TypeAttendanceMarked, queue.AttendanceMarked{RecordID: "r1", StudentID: "23IT56"}))
	require.NoError(t, queue.PublishJSON(ctx, q, queue.TypeODDecided, queue.ODDecided{RequestID: "o1", Status: "approved"}))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx, q) }()

	require.Eventually(t, func() bool {
		return logs.FilterMessage("od decided").Len() == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	marked := logs.FilterMessage("attendance marked").All()
	require.Len(t, marked, 1)
	assert.Equal(t, "23IT56", marked[0].ContextMap()["student_id"])
}

func TestHandleRejectsBadMessages(t *testing.T) {
	w := New(nil)
	assert.ErrorIs(t, w.Handle(queue.Message{Type: "checkin"}), ErrUnknownEvent)
	assert.Error(t, w.Handle(queue.Message{Type: queue.TypeODSubmitted, Body: []byte("{")}))
}
