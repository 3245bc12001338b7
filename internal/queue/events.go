package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types published by the services.
const (
	TypeAttendanceMarked = "attendance.marked"
	TypeODSubmitted      = "od.submitted"
	TypeODDecided        = "od.decided"
)

// AttendanceMarked is published once per new attendance record.
type AttendanceMarked struct {
	RecordID   string    `json:"record_id"`
	StudentID  string    `json:"student_id"`
	Date       string    `json:"date"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// ODSubmitted is published when a student files an OD request.
type ODSubmitted struct {
	RequestID    string    `json:"request_id"`
	StudentID    string    `json:"student_id"`
	ActivityName string    `json:"activity_name"`
	Verified     bool      `json:"verified_by_ocr"`
	CreatedAt    time.Time `json:"created_at"`
}

// ODDecided is published after an administrator approves or rejects.
type ODDecided struct {
	RequestID string    `json:"request_id"`
	StudentID string    `json:"student_id"`
	Status    string    `json:"status"`
	DecidedBy string    `json:"decided_by"`
	DecidedAt time.Time `json:"decided_at"`
}

// PublishJSON marshals payload and publishes it under typ. A nil publisher
// is a no-op.
func PublishJSON(ctx context.Context, p Publisher, typ string, payload any) error {
	if p == nil {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, Message{
		ID:          uuid.NewString(),
		Type:        typ,
		Body:        body,
		PublishedAt: time.Now().UTC(),
	})
}
