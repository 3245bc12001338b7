// Package od implements the On-Duty request lifecycle: submission with
// heuristic document verification, then one irreversible admin decision.
package od

import (
	"errors"
	"fmt"
	"time"
)

// Status of an OD request. Pending is the only non-terminal status.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatusFilter accepts a list filter; "" and "all" mean no filter.
func ParseStatusFilter(s string) (Status, error) {
	switch Status(s) {
	case "", "all":
		return "", nil
	case StatusPending, StatusApproved, StatusRejected:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Outcome is an admin decision.
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)

// Status returns the terminal status an outcome leads to.
func (o Outcome) Status() (Status, error) {
	switch o {
	case OutcomeApprove:
		return StatusApproved, nil
	case OutcomeReject:
		return StatusRejected, nil
	}
	return "", fmt.Errorf("unknown outcome %q", string(o))
}

var (
	ErrNotFound       = errors.New("od request not found")
	ErrAlreadyDecided = errors.New("od request already decided")
)

// Request is one OD request.
type Request struct {
	ID                 string     `json:"id"`
	StudentID          string     `json:"student_id"`
	StudentName        string     `json:"student_name"`
	ActivityType       string     `json:"activity_type"`
	ActivityName       string     `json:"activity_name"`
	EventDate          string     `json:"event_date"`
	EventVenue         string     `json:"event_venue,omitempty"`
	OrganizedBy        string     `json:"organized_by,omitempty"`
	CoordinatorName    string     `json:"coordinator_name,omitempty"`
	CoordinatorContact string     `json:"coordinator_contact,omitempty"`
	Reason             string     `json:"od_reason"`
	DocumentRef        string     `json:"document_ref"`
	DocumentMIME       string     `json:"document_mime"`
	OCRText            string     `json:"ocr_text,omitempty"`
	VerifiedByOCR      bool       `json:"verified_by_ocr"`
	Status             Status     `json:"status"`
	AdminNotes         string     `json:"admin_notes,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	DecidedAt          *time.Time `json:"decided_at,omitempty"`
	DecidedBy          string     `json:"decided_by,omitempty"`
}

// Summary drops the OCR text, which only the detail view shows.
func (r Request) Summary() Request {
	r.OCRText = ""
	return r
}

// Decision is applied to a pending request.
type Decision struct {
	Status    Status
	Notes     string
	DecidedBy string
	DecidedAt time.Time
}

// Counts per status.
type Counts struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

func (c *Counts) add(s Status, n int) {
	switch s {
	case StatusPending:
		c.Pending += n
	case StatusApproved:
		c.Approved += n
	case StatusRejected:
		c.Rejected += n
	}
}
