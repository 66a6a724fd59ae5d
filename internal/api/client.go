// Package api implements the HTTP client for the attendance service:
// login, multipart attendance submission and banner retrieval.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/cechriza/marcaje/internal/model"
)

// RemoteError is a non-2xx response from the attendance service, preserved
// with status and body so the pipeline can report it without throwing.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote rejected: status %d: %s", e.Status, e.Body)
}

// Client talks to the attendance service.
type Client struct {
	base string
	http *http.Client
}

// NewClient constructs a client for the given base URL, e.g.
// "https://api.cechrizaoperaciones.com/api".
func NewClient(base string) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Login authenticates with employee code and password and returns the session.
func (c *Client) Login(ctx context.Context, empCode, password string) (model.Session, error) {
	body, err := json.Marshal(map[string]string{
		"emp_code": empCode,
		"password": password,
	})
	if err != nil {
		return model.Session{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/login", bytes.NewReader(body))
	if err != nil {
		return model.Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.Session{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.Session{}, remoteError(resp)
	}

	var lr struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID      int64    `json:"id"`
			Name    string   `json:"name"`
			Email   string   `json:"email"`
			Roles   []string `json:"roles"`
			EmpCode string   `json:"emp_code"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return model.Session{}, fmt.Errorf("decode login response: %w", err)
	}
	return model.Session{
		UserID:  lr.User.ID,
		Token:   lr.AccessToken,
		Name:    lr.User.Name,
		Email:   lr.User.Email,
		EmpCode: lr.User.EmpCode,
		Roles:   lr.User.Roles,
	}, nil
}

// Submission is one attendance delivery. Photo may be nil; the endpoint
// still receives a "photo" part with an empty placeholder so the form shape
// stays constant across retries.
type Submission struct {
	UserID    int64
	Record    model.Attendance
	Address   string // resolved address or coordinate fallback
	Photo     []byte
	PhotoName string
}

// SubmitResult is the server's acknowledgment of a submission.
type SubmitResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	ServerID *int64 `json:"server_id"`
}

// SubmitAttendance posts the record as a multipart form tagged with its
// idempotency token (client_id) so the server deduplicates retries.
// Non-2xx responses come back as *RemoteError, never as a panic or a
// swallowed failure.
func (c *Client) SubmitAttendance(ctx context.Context, bearer string, sub Submission) (*SubmitResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	rec := sub.Record
	fields := map[string]string{
		"user_id":               strconv.FormatInt(sub.UserID, 10),
		"timestamp":             strconv.FormatInt(rec.Timestamp.UnixMilli(), 10),
		"latitude":              strconv.FormatFloat(rec.Latitude, 'f', -1, 64),
		"longitude":             strconv.FormatFloat(rec.Longitude, 'f', -1, 64),
		"notes":                 rec.Note,
		"device_model":          rec.Device,
		"battery_percentage":    strconv.Itoa(rec.Battery),
		"signal_strength":       strconv.Itoa(rec.Signal),
		"network_type":          string(rec.Network),
		"address":               sub.Address,
		"is_internet_available": boolField(rec.Online),
		"type":                  rec.Kind.WireType(),
		"client_id":             rec.Token.String(),
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}

	// The photo part is always present so the form keeps one shape; an
	// empty placeholder stands in when no photo was captured.
	photoName := sub.PhotoName
	if len(sub.Photo) == 0 {
		photoName = "placeholder.jpg"
	}
	part, err := w.CreateFormFile("photo", photoName)
	if err != nil {
		return nil, err
	}
	if len(sub.Photo) > 0 {
		if _, err := part.Write(sub.Photo); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/attendances", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, remoteError(resp)
	}

	var out SubmitResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode submit response: %w", err)
	}
	return &out, nil
}

// Banners fetches the informational banner image URLs.
func (c *Client) Banners(ctx context.Context, bearer string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/banners", nil)
	if err != nil {
		return nil, err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, remoteError(resp)
	}
	var body struct {
		Banners []string `json:"banners"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode banners: %w", err)
	}
	return body.Banners, nil
}

func remoteError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	return &RemoteError{Status: resp.StatusCode, Body: string(b)}
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
