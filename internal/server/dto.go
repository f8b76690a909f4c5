package server

import (
	"time"

	"protodesk/internal/domain"
	"protodesk/internal/timeline"
)

// Request payloads

type CreateProtocolRequest struct {
	Title              string     `json:"title" minLength:"1"`
	Description        string     `json:"description" minLength:"1"`
	CustomerID         int64      `json:"customer_id"`
	AssignedTo         int64      `json:"assigned_to"`
	StatusID           int64      `json:"status_id,omitempty"`
	Priority           string     `json:"priority" example:"Medium"`
	DateRequired       *time.Time `json:"date_required,omitempty"`
	ExpectedCompletion *time.Time `json:"expected_completion,omitempty"`
}

type UpdateProtocolRequest struct {
	Title              *string    `json:"title,omitempty"`
	Description        *string    `json:"description,omitempty"`
	AssignedTo         *int64     `json:"assigned_to,omitempty"`
	Priority           *string    `json:"priority,omitempty"`
	DateRequired       *time.Time `json:"date_required,omitempty"`
	ExpectedCompletion *time.Time `json:"expected_completion,omitempty"`
	ClearDates         bool       `json:"clear_dates,omitempty"`
}

type ChangeStatusRequest struct {
	StatusID int64  `json:"status_id"`
	Notes    string `json:"notes,omitempty"`
}

type AddCommentRequest struct {
	Content string `json:"content"`
}

type AddAttachmentRequest struct {
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type,omitempty"`
	Locator     string `json:"locator"`
	Description string `json:"description,omitempty"`
}

type CreateReminderRequest struct {
	Text         string    `json:"reminder_text"`
	Message      string    `json:"reminder_message,omitempty"`
	ReminderDate time.Time `json:"reminder_date"`
}

type CustomerRequest struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	BranchID   *int64 `json:"branch_id,omitempty"`
	Active     *bool  `json:"active,omitempty"`
}

type PersonnelRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	BranchID  *int64 `json:"branch_id,omitempty"`
	Active    *bool  `json:"active,omitempty"`
}

type BranchRequest struct {
	Name string `json:"branch_name"`
	Code string `json:"branch_code"`
}

type DevLoginRequest struct {
	ActorID int64 `json:"actor_id"`
}

// Response payloads

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	ActorID int64  `json:"actor_id"`
	Source  string `json:"source"`
}

type StatusCountResponse struct {
	StatusID   int64  `json:"status_id"`
	StatusName string `json:"status_name"`
	IsTerminal bool   `json:"is_terminal"`
	Count      int    `json:"count"`
}

type paginatedProtocols struct {
	Items      []domain.Protocol `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// EventResponse flattens the three event variants; fields not used by a kind are omitted.
type EventResponse struct {
	Kind             domain.EventKind `json:"kind" enum:"comment,status,attachment"`
	ID               int64            `json:"id"`
	Seq              int64            `json:"seq"`
	ProtocolID       int64            `json:"protocol_id"`
	ActorID          int64            `json:"actor_id"`
	CreatedAt        time.Time        `json:"created_at"`
	Content          string           `json:"content,omitempty"`
	PreviousStatusID *int64           `json:"previous_status_id,omitempty"`
	NewStatusID      int64            `json:"new_status_id,omitempty"`
	Notes            string           `json:"notes,omitempty"`
	FileName         string           `json:"file_name,omitempty"`
	FileSize         int64            `json:"file_size,omitempty"`
	ContentType      string           `json:"content_type,omitempty"`
	Locator          string           `json:"locator,omitempty"`
	Description      string           `json:"description,omitempty"`
}

type TimelineResponse struct {
	ProtocolID int64           `json:"protocol_id"`
	Items      []timeline.Item `json:"items"`
}

type APIKeyResponse struct {
	ID        string    `json:"id"`
	ActorID   int64     `json:"actor_id"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Key       string    `json:"key,omitempty"`
}

func eventResponse(evt domain.Event) EventResponse {
	h := evt.Header()
	resp := EventResponse{
		Kind:       evt.Kind(),
		ID:         h.ID,
		Seq:        h.Seq,
		ProtocolID: h.ProtocolID,
		ActorID:    h.ActorID,
		CreatedAt:  h.CreatedAt,
	}
	switch v := evt.(type) {
	case domain.Comment:
		resp.Content = v.Content
	case domain.StatusChange:
		resp.PreviousStatusID = v.PreviousStatusID
		resp.NewStatusID = v.NewStatusID
		resp.Notes = v.Notes
	case domain.Attachment:
		resp.FileName = v.FileName
		resp.FileSize = v.FileSize
		resp.ContentType = v.ContentType
		resp.Locator = v.Locator
		resp.Description = v.Description
	}
	return resp
}

func apiKeyResponse(k domain.APIKey, secret string) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, CreatedAt: k.CreatedAt, Key: secret}
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
