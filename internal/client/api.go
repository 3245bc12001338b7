// Package client is the consumer side of the API: a typed HTTP client, the
// session that gates it, the role router and the dashboard poller.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"campusattend/internal/apperr"
	"campusattend/internal/auth"
	"campusattend/internal/od"
)

// API calls the REST surface. Authenticated calls read the token from Tokens.
type API struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  TokenStore
}

// NewAPI creates a client; timeout bounds every request.
func NewAPI(baseURL string, tokens TokenStore, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if tokens == nil {
		tokens = &MemoryTokens{}
	}
	return &API{BaseURL: baseURL, HTTP: &http.Client{Timeout: timeout}, Tokens: tokens}
}

// Student is the student block of recognition responses.
type Student struct {
	Name      string `json:"name"`
	StudentID string `json:"student_id"`
}

// MarkResult is the outcome of mark-attendance or recognize. Rejected
// recognitions are results, not errors.
type MarkResult struct {
	Success       bool      `json:"success"`
	AlreadyMarked bool      `json:"already_marked"`
	Message       string    `json:"message"`
	Student       Student   `json:"student"`
	Confidence    float64   `json:"confidence"`
	Timestamp     time.Time `json:"timestamp"`
	Reason        string    `json:"error"`
}

// Rejected reports a face that was not accepted.
func (r MarkResult) Rejected() bool { return !r.Success }

// ODForm is the text part of an OD upload.
type ODForm struct {
	ActivityType       string
	ActivityName       string
	EventDate          string
	EventVenue         string
	OrganizedBy        string
	CoordinatorName    string
	CoordinatorContact string
	Reason             string
}

// ODSubmission is the upload-od response.
type ODSubmission struct {
	RequestID    string `json:"request_id"`
	Message      string `json:"message"`
	Verification struct {
		IsValid          bool   `json:"is_valid"`
		Message          string `json:"message"`
		DetectedActivity string `json:"detected_activity"`
	} `json:"verification"`
}

// StudentDashboard is the student landing page.
type StudentDashboard struct {
	TodayAttendance  string        `json:"today_attendance"`
	ODStats          od.Counts     `json:"od_stats"`
	StudentInfo      auth.Identity `json:"student_info"`
	RecentActivities []struct {
		ActivityName string    `json:"activity_name"`
		EventDate    string    `json:"event_date"`
		Status       od.Status `json:"status"`
	} `json:"recent_activities"`
}

// AdminDashboard is the admin landing page.
type AdminDashboard struct {
	Stats struct {
		TotalStudents     int `json:"total_students"`
		TodayAttendance   int `json:"today_attendance"`
		PendingODRequests int `json:"pending_od_requests"`
	} `json:"stats"`
	ODBreakdown    od.Counts    `json:"od_breakdown"`
	RecentRequests []od.Request `json:"recent_requests"`
}

// LoginResult is the login response.
type LoginResult struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      auth.Identity `json:"user"`
}

// Login exchanges credentials for a token and saves it.
func (a *API) Login(ctx context.Context, username, password string) (LoginResult, error) {
	var out LoginResult
	err := a.doJSON(ctx, http.MethodPost, "/api/login", false, map[string]string{"username": username, "password": password}, &out)
	if err != nil {
		return LoginResult{}, err
	}
	if err := a.Tokens.Save(out.Token); err != nil {
		return LoginResult{}, fmt.Errorf("save token: %w", err)
	}
	return out, nil
}

// RegisterInput mirrors the register payload.
type RegisterInput struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	StudentID  string `json:"student_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Department string `json:"department,omitempty"`
	Year       string `json:"year,omitempty"`
}

// Register creates an account; it does not sign in.
func (a *API) Register(ctx context.Context, in RegisterInput) (auth.Identity, error) {
	var out struct {
		User auth.Identity `json:"user"`
	}
	err := a.doJSON(ctx, http.MethodPost, "/api/register", false, in, &out)
	return out.User, err
}

// Me returns the identity behind the stored token.
func (a *API) Me(ctx context.Context) (auth.Identity, error) {
	var out struct {
		User auth.Identity `json:"user"`
	}
	err := a.doJSON(ctx, http.MethodGet, "/api/me", true, nil, &out)
	return out.User, err
}

// MarkAttendance submits a still for the signed-in student.
func (a *API) MarkAttendance(ctx context.Context, jpeg []byte) (MarkResult, error) {
	return a.recognition(ctx, "/api/student/mark-attendance", true, jpeg)
}

// Recognize submits a still on the anonymous kiosk path.
func (a *API) Recognize(ctx context.Context, jpeg []byte) (MarkResult, error) {
	return a.recognition(ctx, "/recognize", false, jpeg)
}

func (a *API) recognition(ctx context.Context, path string, authed bool, jpeg []byte) (MarkResult, error) {
	body, contentType, err := multipartBody(nil, "image", "face_capture.jpg", jpeg)
	if err != nil {
		return MarkResult{}, err
	}
	var out MarkResult
	err = a.do(ctx, http.MethodPost, path, authed, body, contentType, &out, http.StatusUnprocessableEntity)
	return out, err
}

// UploadOD files an OD request with its document.
func (a *API) UploadOD(ctx context.Context, form ODForm, filename string, doc []byte) (ODSubmission, error) {
	fields := map[string]string{
		"activity_type":       form.ActivityType,
		"activity_name":       form.ActivityName,
		"event_date":          form.EventDate,
		"event_venue":         form.EventVenue,
		"organized_by":        form.OrganizedBy,
		"coordinator_name":    form.CoordinatorName,
		"coordinator_contact": form.CoordinatorContact,
		"od_reason":           form.Reason,
	}
	body, contentType, err := multipartBody(fields, "od_file", filename, doc)
	if err != nil {
		return ODSubmission{}, err
	}
	var out ODSubmission
	err = a.do(ctx, http.MethodPost, "/api/student/upload-od", true, body, contentType, &out)
	return out, err
}

// StudentDashboard loads the student dashboard.
func (a *API) StudentDashboard(ctx context.Context) (StudentDashboard, error) {
	var out StudentDashboard
	err := a.doJSON(ctx, http.MethodGet, "/api/student/dashboard", true, nil, &out)
	return out, err
}

// StudentODRequests lists the signed-in student's requests.
func (a *API) StudentODRequests(ctx context.Context) ([]od.Request, error) {
	var out struct {
		Requests []od.Request `json:"od_requests"`
	}
	err := a.doJSON(ctx, http.MethodGet, "/api/student/od-requests", true, nil, &out)
	return out.Requests, err
}

// AdminDashboard loads the admin dashboard.
func (a *API) AdminDashboard(ctx context.Context) (AdminDashboard, error) {
	var out AdminDashboard
	err := a.doJSON(ctx, http.MethodGet, "/api/admin/dashboard", true, nil, &out)
	return out, err
}

// ODRequests lists requests for review; status may be empty.
func (a *API) ODRequests(ctx context.Context, status string) ([]od.Request, error) {
	path := "/api/admin/od-requests"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out struct {
		Requests []od.Request `json:"od_requests"`
	}
	err := a.doJSON(ctx, http.MethodGet, path, true, nil, &out)
	return out.Requests, err
}

// ODRequest loads one request with its OCR text.
func (a *API) ODRequest(ctx context.Context, id string) (od.Request, error) {
	var out struct {
		Request od.Request `json:"od_request"`
	}
	err := a.doJSON(ctx, http.MethodGet, "/api/admin/od-request/"+url.PathEscape(id), true, nil, &out)
	return out.Request, err
}

// Decide approves or rejects a request.
func (a *API) Decide(ctx context.Context, id string, outcome od.Outcome, notes string) (od.Request, error) {
	path := "/api/admin/approve-od/"
	if outcome == od.OutcomeReject {
		path = "/api/admin/reject-od/"
	}
	var out struct {
		Request od.Request `json:"od_request"`
	}
	err := a.doJSON(ctx, http.MethodPost, path+url.PathEscape(id), true, map[string]string{"notes": notes}, &out)
	return out.Request, err
}

func (a *API) doJSON(ctx context.Context, method, path string, authed bool, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return a.do(ctx, method, path, authed, body, contentType, out)
}

// do sends the request and decodes the body into out for 2xx responses and
// for any status listed in accept. Other statuses become *apperr.Error.
func (a *API) do(ctx context.Context, method, path string, authed bool, body io.Reader, contentType string, out any, accept ...int) error {
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authed {
		token, err := a.Tokens.Load()
		if err != nil {
			return fmt.Errorf("load token: %w", err)
		}
		if token == "" {
			return apperr.With(apperr.ErrUnauthorized, "not signed in")
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.ErrNetwork, err, "server unreachable")
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return apperr.Wrap(apperr.ErrNetwork, err, "read response")
	}

	ok := resp.StatusCode < 300
	for _, s := range accept {
		ok = ok || resp.StatusCode == s
	}
	if !ok {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Wrap(apperr.ErrNetwork, err, "unexpected response body")
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	_ = json.Unmarshal(data, &body)
	if body.Code == "" {
		body.Code = apperr.ErrInternal.Code
		if status >= 500 {
			body.Code = apperr.ErrNetwork.Code
		}
	}
	if body.Error == "" {
		body.Error = http.StatusText(status)
	}
	return &apperr.Error{Code: body.Code, Message: body.Error, Status: status}
}

func multipartBody(fields map[string]string, fileField, filename string, data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	part, err := w.CreateFormFile(fileField, filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
