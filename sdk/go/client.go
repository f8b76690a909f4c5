package protodesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal protodesk HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Protocol represents the API protocol model.
type Protocol struct {
	ID                 int64      `json:"protocol_id"`
	Number             string     `json:"protocol_number"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	CustomerID         int64      `json:"customer_id"`
	AssignedTo         int64      `json:"assigned_to"`
	StatusID           int64      `json:"status_id"`
	Priority           string     `json:"priority"`
	DateRequired       *time.Time `json:"date_required,omitempty"`
	ExpectedCompletion *time.Time `json:"expected_completion,omitempty"`
	CreatedBy          int64      `json:"created_by"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
}

// NewProtocol is the create payload.
type NewProtocol struct {
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	CustomerID         int64      `json:"customer_id"`
	AssignedTo         int64      `json:"assigned_to"`
	StatusID           int64      `json:"status_id,omitempty"`
	Priority           string     `json:"priority"`
	DateRequired       *time.Time `json:"date_required,omitempty"`
	ExpectedCompletion *time.Time `json:"expected_completion,omitempty"`
}

type Status struct {
	ID         int64  `json:"status_id"`
	Name       string `json:"status_name"`
	IsTerminal bool   `json:"is_terminal"`
	Order      int    `json:"order_sequence"`
}

// Event is one entry of the raw event log. Fields not used by Kind are zero.
type Event struct {
	Kind             string    `json:"kind"`
	ID               int64     `json:"id"`
	Seq              int64     `json:"seq"`
	ProtocolID       int64     `json:"protocol_id"`
	ActorID          int64     `json:"actor_id"`
	CreatedAt        time.Time `json:"created_at"`
	Content          string    `json:"content,omitempty"`
	PreviousStatusID *int64    `json:"previous_status_id,omitempty"`
	NewStatusID      int64     `json:"new_status_id,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	FileName         string    `json:"file_name,omitempty"`
	FileSize         int64     `json:"file_size,omitempty"`
	ContentType      string    `json:"content_type,omitempty"`
	Locator          string    `json:"locator,omitempty"`
	Description      string    `json:"description,omitempty"`
}

// TimelineItem is a rendered timeline entry.
type TimelineItem struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Content   string         `json:"content"`
	ActorID   int64          `json:"actor_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ProtocolPage wraps list responses with cursors.
type ProtocolPage struct {
	Items      []Protocol `json:"items"`
	NextCursor string     `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error envelope when the
// body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsCode reports whether err is an APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func (c *Client) Statuses(ctx context.Context) ([]Status, error) {
	var resp []Status
	err := c.do(ctx, http.MethodGet, "statuses", nil, &resp)
	return resp, err
}

// CreateProtocol opens a protocol.
func (c *Client) CreateProtocol(ctx context.Context, p NewProtocol) (Protocol, error) {
	var resp Protocol
	err := c.do(ctx, http.MethodPost, "protocols", p, &resp)
	return resp, err
}

func (c *Client) GetProtocol(ctx context.Context, id int64) (Protocol, error) {
	var resp Protocol
	err := c.do(ctx, http.MethodGet, protocolPath(id, ""), nil, &resp)
	return resp, err
}

// ListProtocols returns one page, newest first.
func (c *Client) ListProtocols(ctx context.Context, limit int, cursor string) (ProtocolPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "protocols"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp ProtocolPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ChangeStatus moves a protocol; terminal protocols answer with code invalid_transition.
func (c *Client) ChangeStatus(ctx context.Context, protocolID, statusID int64, notes string) (Event, error) {
	body := map[string]any{"status_id": statusID}
	if notes != "" {
		body["notes"] = notes
	}
	var resp Event
	err := c.do(ctx, http.MethodPost, protocolPath(protocolID, "status"), body, &resp)
	return resp, err
}

func (c *Client) AddComment(ctx context.Context, protocolID int64, content string) (Event, error) {
	var resp Event
	err := c.do(ctx, http.MethodPost, protocolPath(protocolID, "comments"), map[string]any{"content": content}, &resp)
	return resp, err
}

// UploadAttachment sends file bytes; the server stores them and records the attachment.
func (c *Client) UploadAttachment(ctx context.Context, protocolID int64, name, contentType string, body io.Reader) (Event, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req, err := c.newRequest(ctx, http.MethodPost, protocolPath(protocolID, "attachments/upload"), body)
	if err != nil {
		return Event{}, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-File-Name", name)
	var resp Event
	err = c.send(req, &resp)
	return resp, err
}

// Events returns the raw event log in append order.
func (c *Client) Events(ctx context.Context, protocolID int64) ([]Event, error) {
	var resp []Event
	err := c.do(ctx, http.MethodGet, protocolPath(protocolID, "events"), nil, &resp)
	return resp, err
}

// Timeline returns the rendered history, newest first.
func (c *Client) Timeline(ctx context.Context, protocolID int64) ([]TimelineItem, error) {
	var resp struct {
		Items []TimelineItem `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, protocolPath(protocolID, "timeline"), nil, &resp)
	return resp.Items, err
}

func protocolPath(id int64, suffix string) string {
	p := "protocols/" + strconv.FormatInt(id, 10)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := c.newRequest(ctx, method, endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	u := c.base() + "/" + strings.Trim(c.BasePath, "/") + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message, apiErr.Details = env.Error.Code, env.Error.Message, env.Error.Details
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
