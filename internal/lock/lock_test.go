package lock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"

	"protodesk/internal/lock"
)

func TestMutexMapSerializesPerKey(t *testing.T) {
	m := lock.NewMutexMap()
	counter := 0
	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			m.Lock(7)
			defer m.Unlock(7)
			counter++
			return nil
		})
	}
	assert.NoError(t, g.Wait())
	assert.Equal(t, 50, counter)
	assert.Zero(t, m.Len())
}

func TestMutexMapIndependentKeys(t *testing.T) {
	m := lock.NewMutexMap()
	m.Lock(1)
	m.Lock(2)
	assert.Equal(t, 2, m.Len())
	m.Unlock(2)
	m.Unlock(1)
	assert.Zero(t, m.Len())
}
