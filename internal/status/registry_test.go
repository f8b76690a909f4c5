package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"protodesk/internal/domain"
)

func TestListOrdersBySequenceThenID(t *testing.T) {
	reg, err := New([]domain.Status{
		{ID: 9, Name: "Done", OrderSequence: 3, IsTerminal: true},
		{ID: 4, Name: "Waiting", OrderSequence: 2},
		{ID: 2, Name: "Review", OrderSequence: 2},
		{ID: 1, Name: "New", OrderSequence: 1},
	}, "new")
	require.NoError(t, err)

	var ids []int64
	for _, s := range reg.List() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []int64{1, 2, 4, 9}, ids)
	assert.Equal(t, int64(1), reg.Default().ID)

	list := reg.List()
	list[0].Name = "mutated"
	again, err := reg.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "New", again.Name)
}

func TestGetUnknown(t *testing.T) {
	reg, err := New([]domain.Status{{ID: 1, Name: "New"}}, "New")
	require.NoError(t, err)
	_, err = reg.Get(42)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	_, ok := reg.Name(42)
	assert.False(t, ok)
}

func TestNewRejectsBadSets(t *testing.T) {
	_, err := New(nil, "New")
	assert.Error(t, err)
	_, err = New([]domain.Status{{ID: 1, Name: "New"}, {ID: 1, Name: "Other"}}, "New")
	assert.Error(t, err)
	_, err = New([]domain.Status{{ID: 1, Name: "New"}, {ID: 2, Name: "NEW"}}, "New")
	assert.Error(t, err)
	_, err = New([]domain.Status{{ID: 1, Name: "New"}}, "Open")
	assert.Error(t, err)
	_, err = New([]domain.Status{{ID: 1, Name: "Closed", IsTerminal: true}}, "Closed")
	assert.Error(t, err)
}
