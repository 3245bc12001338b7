package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"campusattend/internal/apperr"
)

// MatchResult is the matcher's verdict for one image.
type MatchResult struct {
	Matched    bool    `json:"matched"`
	StudentID  string  `json:"student_id,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Client calls the face recognition microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client; timeout bounds every call to the matcher.
func New(baseURL string, skip bool, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Match sends one encoded image to the matcher. claimedStudentID, when set,
// asks for 1:1 verification against that student instead of a 1:N search.
func (c *Client) Match(ctx context.Context, image []byte, filename, claimedStudentID string) (*MatchResult, error) {
	if c.Skip {
		id := claimedStudentID
		if id == "" {
			id = "23IT56"
		}
		return &MatchResult{Matched: true, StudentID: id, Confidence: 0.92}, nil
	}
	if len(image) == 0 {
		return nil, apperr.With(apperr.ErrValidation, "image is required")
	}
	if filename == "" {
		filename = "face_capture.jpg"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if claimedStudentID != "" {
		_ = w.WriteField("student_id", claimedStudentID)
	}
	part, err := w.CreateFormFile("image", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(image); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/recognize", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrNetwork, err, "face service request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, apperr.Wrap(apperr.ErrNetwork, fmt.Errorf("%s: %s", resp.Status, string(body)), "face service error")
	}

	var out MatchResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Wrap(apperr.ErrNetwork, err, "face service returned an unreadable response")
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, apperr.With(apperr.ErrNetwork, fmt.Sprintf("face service returned confidence %v outside [0,1]", out.Confidence))
	}
	return &out, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}
