package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryDeliversPublishedEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, PublishJSON(ctx, q, TypeODDecided, ODDecided{RequestID: "r-1", Status: "approved"}))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		require.Equal(t, TypeODDecided, msg.Type)
		var evt ODDecided
		require.NoError(t, json.Unmarshal(msg.Body, &evt))
		require.Equal(t, "r-1", evt.RequestID)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	select {
	case _, ok := <-msgs:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestPublishJSONNilPublisher(t *testing.T) {
	require.NoError(t, PublishJSON(context.Background(), nil, TypeODSubmitted, struct{}{}))
}

func TestEnvelopeRoundTrip(t *testing.T) {
	at := time.Date(2024, 2, 12, 9, 30, 0, 0, time.UTC)
	entry, err := encode(Message{ID: "e-1", Type: TypeAttendanceMarked, Body: []byte(`{"a":"x|y"}`), PublishedAt: at})
	require.NoError(t, err)

	msg := decode(entry)
	require.Equal(t, "e-1", msg.ID)
	require.Equal(t, TypeAttendanceMarked, msg.Type)
	require.JSONEq(t, `{"a":"x|y"}`, string(msg.Body))
	require.True(t, at.Equal(msg.PublishedAt))
}

func TestEncodeRejectsNonJSONBody(t *testing.T) {
	_, err := encode(Message{Type: "t", Body: []byte("not json")})
	require.Error(t, err)
}

func TestDecodeForeignEntryIsUntyped(t *testing.T) {
	msg := decode("checkin|42")
	require.Empty(t, msg.Type)
	require.Equal(t, "checkin|42", string(msg.Body))
}

func TestPublishJSONStampsMessages(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, PublishJSON(context.Background(), q, TypeODSubmitted, ODSubmitted{RequestID: "r-2"}))
	msg := <-q.ch
	require.NotEmpty(t, msg.ID)
	require.False(t, msg.PublishedAt.IsZero())
}
