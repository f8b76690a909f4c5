package domain

import (
	"fmt"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// ParsePriority accepts exactly Low, Medium or High.
func ParsePriority(in string) (Priority, error) {
	switch p := Priority(in); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	}
	return "", &ValidationError{Field: "priority", Reason: fmt.Sprintf("must be one of Low, Medium, High (got %q)", in)}
}

type Status struct {
	ID            int64  `json:"status_id" yaml:"id"`
	Name          string `json:"status_name" yaml:"name"`
	Color         string `json:"color,omitempty" yaml:"color"`
	IsTerminal    bool   `json:"is_terminal" yaml:"terminal"`
	OrderSequence int    `json:"order_sequence" yaml:"order"`
}

type Protocol struct {
	ID                 int64      `json:"protocol_id"`
	Number             string     `json:"protocol_number"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	CustomerID         int64      `json:"customer_id"`
	AssignedTo         int64      `json:"assigned_to"`
	StatusID           int64      `json:"status_id"`
	Priority           Priority   `json:"priority" enum:"Low,Medium,High"`
	DateRequired       *time.Time `json:"date_required,omitempty"`
	ExpectedCompletion *time.Time `json:"expected_completion,omitempty"`
	CreatedBy          int64      `json:"created_by"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
}

type Customer struct {
	ID         int64     `json:"customer_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Address    string    `json:"address,omitempty"`
	City       string    `json:"city,omitempty"`
	State      string    `json:"state,omitempty"`
	PostalCode string    `json:"postal_code,omitempty"`
	BranchID   *int64    `json:"branch_id,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Personnel is a broker; personnel ids double as actor ids.
type Personnel struct {
	ID        int64     `json:"personnel_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	BranchID  *int64    `json:"branch_id,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Branch struct {
	ID        int64     `json:"branch_id"`
	Name      string    `json:"branch_name"`
	Code      string    `json:"branch_code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Reminder struct {
	ID           int64     `json:"reminder_id"`
	ProtocolID   int64     `json:"protocol_id"`
	Text         string    `json:"reminder_text"`
	Message      string    `json:"reminder_message,omitempty"`
	ReminderDate time.Time `json:"reminder_date"`
	IsCompleted  bool      `json:"is_completed"`
	IsSent       bool      `json:"is_sent"`
	CreatedBy    int64     `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

type APIKey struct {
	ID        string    `json:"id"`
	ActorID   int64     `json:"actor_id"`
	Name      string    `json:"name,omitempty"`
	KeyHash   string    `json:"key_hash"`
	CreatedAt time.Time `json:"created_at"`
}
