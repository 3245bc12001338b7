// Package worker consumes domain events off the queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"campusattend/internal/queue"
)

// ErrUnknownEvent is returned for messages of an unrecognised type.
var ErrUnknownEvent = errors.New("unknown event type")

// Worker logs each event as one structured line.
type Worker struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{log: log}
}

// Run consumes until ctx is cancelled or the queue closes the stream.
func (w *Worker) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	w.log.Info("worker started")
	for msg := range messages {
		if err := w.Handle(msg); err != nil {
			w.log.Warn("event skipped", zap.String("event_id", msg.ID), zap.String("type", msg.Type), zap.Error(err))
		}
	}
	w.log.Info("worker stopped")
	return nil
}

// Handle decodes one message.
func (w *Worker) Handle(msg queue.Message) error {
	switch msg.Type {
	case queue.TypeAttendanceMarked:
		var evt queue.AttendanceMarked
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		w.log.Info("attendance marked",
			zap.String("record_id", evt.RecordID),
			zap.String("student_id", evt.StudentID),
			zap.String("date", evt.Date),
			zap.Float64("confidence", evt.Confidence))
	case queue.TypeODSubmitted:
		var evt queue.ODSubmitted
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		w.log.Info("od submitted",
			zap.String("request_id", evt.RequestID),
			zap.String("student_id", evt.StudentID),
			zap.String("activity", evt.ActivityName),
			zap.Bool("verified_by_ocr", evt.Verified))
	case queue.TypeODDecided:
		var evt queue.ODDecided
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		w.log.Info("od decided",
			zap.String("request_id", evt.RequestID),
			zap.String("student_id", evt.StudentID),
			zap.String("status", evt.Status),
			zap.String("decided_by", evt.DecidedBy))
	default:
		return fmt.Errorf("%w %q", ErrUnknownEvent, msg.Type)
	}
	return nil
}
