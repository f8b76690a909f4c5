// Package timeline merges a protocol's event log into a display sequence.
package timeline

import (
	"fmt"
	"sort"
	"time"

	"protodesk/internal/domain"
)

const unknownStatus = "Unknown"

// StatusNamer resolves status display names.
type StatusNamer interface {
	Name(id int64) (string, bool)
}

// Item is a read-only projection of one event.
type Item struct {
	ID        string           `json:"id"`
	Kind      domain.EventKind `json:"kind" enum:"comment,status,attachment"`
	Timestamp time.Time        `json:"timestamp"`
	Content   string           `json:"content"`
	ActorID   int64            `json:"actor_id"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
}

// Compose renders events and orders them newest first. Events sharing a timestamp keep the
// order in which they were passed in.
func Compose(events []domain.Event, names StatusNamer) []Item {
	items := make([]Item, 0, len(events))
	for _, evt := range events {
		items = append(items, render(evt, names))
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.After(items[j].Timestamp)
	})
	return items
}

// ItemID namespaces a variant id so ids from different event tables never collide.
func ItemID(kind domain.EventKind, id int64) string {
	return fmt.Sprintf("%s-%d", kind, id)
}

func render(evt domain.Event, names StatusNamer) Item {
	h := evt.Header()
	item := Item{
		ID:        ItemID(evt.Kind(), h.ID),
		Kind:      evt.Kind(),
		Timestamp: h.CreatedAt,
		ActorID:   h.ActorID,
	}
	switch e := deref(evt).(type) {
	case domain.Comment:
		item.Content = e.Content
	case domain.StatusChange:
		prev := unknownStatus
		if e.PreviousStatusID != nil {
			prev = statusName(names, *e.PreviousStatusID)
		}
		item.Content = fmt.Sprintf("Status changed from %s to %s", prev, statusName(names, e.NewStatusID))
		item.Metadata = map[string]any{
			"previous_status_id": e.PreviousStatusID,
			"new_status_id":      e.NewStatusID,
		}
		if e.Notes != "" {
			item.Metadata["notes"] = e.Notes
		}
	case domain.Attachment:
		item.Content = "File uploaded: " + e.FileName
		item.Metadata = map[string]any{
			"file_name":    e.FileName,
			"file_size":    e.FileSize,
			"content_type": e.ContentType,
			"locator":      e.Locator,
		}
	default:
		panic(fmt.Sprintf("timeline: unhandled event %T", evt))
	}
	return item
}

func deref(evt domain.Event) domain.Event {
	switch e := evt.(type) {
	case *domain.Comment:
		return *e
	case *domain.StatusChange:
		return *e
	case *domain.Attachment:
		return *e
	}
	return evt
}

func statusName(names StatusNamer, id int64) string {
	if names == nil {
		return unknownStatus
	}
	if n, ok := names.Name(id); ok {
		return n
	}
	return unknownStatus
}
