package domain

import "time"

type EventKind string

const (
	KindComment      EventKind = "comment"
	KindStatusChange EventKind = "status"
	KindAttachment   EventKind = "attachment"
)

// Event is one entry of a protocol's append-only log. The set of implementations is closed:
// Comment, StatusChange and Attachment.
type Event interface {
	Kind() EventKind
	Header() EventHeader
	sealed()
}

// EventHeader holds the fields shared by every event variant. ID is unique only within its
// variant; Seq orders events of one protocol across variants.
type EventHeader struct {
	ID         int64     `json:"id"`
	ProtocolID int64     `json:"protocol_id"`
	ActorID    int64     `json:"actor_id"`
	CreatedAt  time.Time `json:"created_at"`
	Seq        int64     `json:"seq"`
}

type Comment struct {
	EventHeader
	Content string `json:"content"`
}

type StatusChange struct {
	EventHeader
	PreviousStatusID *int64 `json:"previous_status_id"`
	NewStatusID      int64  `json:"new_status_id"`
	Notes            string `json:"notes,omitempty"`
}

type Attachment struct {
	EventHeader
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ContentType string `json:"content_type,omitempty"`
	Locator     string `json:"locator"`
	Description string `json:"description,omitempty"`
}

func (Comment) Kind() EventKind      { return KindComment }
func (StatusChange) Kind() EventKind { return KindStatusChange }
func (Attachment) Kind() EventKind   { return KindAttachment }

func (c Comment) Header() EventHeader      { return c.EventHeader }
func (s StatusChange) Header() EventHeader { return s.EventHeader }
func (a Attachment) Header() EventHeader   { return a.EventHeader }

func (Comment) sealed()      {}
func (StatusChange) sealed() {}
func (Attachment) sealed()   {}

// AttachmentDescriptor is the metadata of an already stored file.
type AttachmentDescriptor struct {
	FileName    string
	FileSize    int64
	ContentType string
	Locator     string
	Description string
}
