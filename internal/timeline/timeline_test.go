package timeline

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"protodesk/internal/domain"
)

type names map[int64]string

func (n names) Name(id int64) (string, bool) {
	v, ok := n[id]
	return v, ok
}

var statuses = names{1: "New", 2: "In Progress", 3: "Completed"}

func at(sec int) time.Time {
	return time.Date(2024, 3, 1, 9, 0, sec, 0, time.UTC)
}

func hdr(id int64, sec int, seq int64) domain.EventHeader {
	return domain.EventHeader{ID: id, ProtocolID: 1, ActorID: 7, CreatedAt: at(sec), Seq: seq}
}

func ptr(v int64) *int64 { return &v }

func sampleLog() []domain.Event {
	return []domain.Event{
		domain.StatusChange{EventHeader: hdr(1, 0, 1), NewStatusID: 1, Notes: "Protocol created"},
		domain.Comment{EventHeader: hdr(1, 0, 2), Content: "first look"},
		domain.StatusChange{EventHeader: hdr(2, 10, 3), PreviousStatusID: ptr(1), NewStatusID: 2},
		domain.Attachment{EventHeader: hdr(1, 20, 4), FileName: "policy.pdf", FileSize: 1024, ContentType: "application/pdf", Locator: "ab/cd"},
		domain.Comment{EventHeader: hdr(2, 30, 5), Content: "ok"},
	}
}

func TestComposeOrdersNewestFirstAndKeepsAppendOrderOnTies(t *testing.T) {
	items := Compose(sampleLog(), statuses)
	var ids []string
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	assert.Equal(t, []string{"comment-2", "attachment-1", "status-2", "status-1", "comment-1"}, ids)
	for i := 1; i < len(items); i++ {
		assert.False(t, items[i].Timestamp.After(items[i-1].Timestamp))
	}
}

func TestComposeRendersVariants(t *testing.T) {
	items := Compose(sampleLog(), statuses)
	byID := map[string]Item{}
	for _, it := range items {
		byID[it.ID] = it
	}
	assert.Equal(t, "Status changed from Unknown to New", byID["status-1"].Content)
	assert.Equal(t, "Protocol created", byID["status-1"].Metadata["notes"])
	assert.Equal(t, "Status changed from New to In Progress", byID["status-2"].Content)
	assert.Equal(t, "File uploaded: policy.pdf", byID["attachment-1"].Content)
	assert.Equal(t, int64(1024), byID["attachment-1"].Metadata["file_size"])
	assert.Equal(t, "ok", byID["comment-2"].Content)
	assert.Equal(t, domain.KindComment, byID["comment-2"].Kind)
	assert.Equal(t, int64(7), byID["comment-2"].ActorID)
}

func TestComposeUnknownStatusDoesNotFail(t *testing.T) {
	items := Compose([]domain.Event{
		domain.StatusChange{EventHeader: hdr(1, 0, 1), PreviousStatusID: ptr(99), NewStatusID: 98},
	}, statuses)
	require.Len(t, items, 1)
	assert.Equal(t, "Status changed from Unknown to Unknown", items[0].Content)

	items = Compose([]domain.Event{
		domain.StatusChange{EventHeader: hdr(1, 0, 1), NewStatusID: 1},
	}, nil)
	assert.Equal(t, "Status changed from Unknown to Unknown", items[0].Content)
}

func TestComposeIsIdempotent(t *testing.T) {
	log := sampleLog()
	first := Compose(log, statuses)
	second := Compose(log, statuses)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("compose not idempotent (-first +second):\n%s", diff)
	}
}

func TestComposeTiesPreserveInsertionOrderNotContent(t *testing.T) {
	log := []domain.Event{
		domain.Comment{EventHeader: hdr(5, 0, 1), Content: "zzz"},
		domain.Comment{EventHeader: hdr(3, 0, 2), Content: "aaa"},
		domain.StatusChange{EventHeader: hdr(1, 0, 3), NewStatusID: 1},
	}
	items := Compose(log, statuses)
	assert.Equal(t, "comment-5", items[0].ID)
	assert.Equal(t, "comment-3", items[1].ID)
	assert.Equal(t, "status-1", items[2].ID)
}

func TestComposeAcceptsPointerVariants(t *testing.T) {
	items := Compose([]domain.Event{&domain.Comment{EventHeader: hdr(1, 0, 1), Content: "ptr"}}, statuses)
	require.Len(t, items, 1)
	assert.Equal(t, "ptr", items[0].Content)
}

func TestComposeEmpty(t *testing.T) {
	assert.Empty(t, Compose(nil, statuses))
}
