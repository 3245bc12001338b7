// Package ocrclient calls the external text-extraction service used to
// verify OD documents.
package ocrclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"campusattend/internal/apperr"
)

// skipText is returned in skip mode so that development uploads exercise
// the keyword heuristic.
const skipText = "Certificate of Participation - event coordinator signature"

// Client calls the OCR microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client; timeout bounds every call.
func New(baseURL string, skip bool, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{BaseURL: baseURL, Skip: skip, HTTP: &http.Client{Timeout: timeout}}
}

// Extract returns the text found in the document.
func (c *Client) Extract(ctx context.Context, doc []byte, filename, mimeType string) (string, error) {
	if c.Skip {
		return skipText, nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="document"; filename=%q`, filename))
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(doc); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/extract", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.ErrNetwork, err, "ocr service request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", apperr.Wrap(apperr.ErrNetwork, fmt.Errorf("%s: %s", resp.Status, string(body)), "ocr service error")
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.Wrap(apperr.ErrNetwork, err, "ocr service returned an unreadable response")
	}
	return strings.TrimSpace(out.Text), nil
}

// Health checks if the OCR service is available.
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
		return fmt.Errorf("ocr service unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ocr service unhealthy: %s", resp.Status)
	}
	return nil
}
