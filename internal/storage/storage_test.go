package storage_test

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"protodesk/internal/storage"
)

func TestDiskPutOpenDelete(t *testing.T) {
	d := storage.Disk{Root: t.TempDir()}
	ctx := context.Background()

	loc, size, err := d.Put(ctx, "Invoice.PDF", strings.NewReader("hello"))
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)
	assert.True(t, strings.HasSuffix(loc, ".pdf"))

	rc, err := d.Open(ctx, loc)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))

	n, err := d.Stat(ctx, loc)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	require.NoError(t, d.Delete(ctx, loc))
	_, err = d.Stat(ctx, loc)
	assert.Error(t, err)
	require.NoError(t, d.Delete(ctx, loc))
	_, err = d.Open(ctx, loc)
	assert.Error(t, err)
}

func TestDiskRejectsTraversal(t *testing.T) {
	d := storage.Disk{Root: t.TempDir()}
	_, err := d.Open(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, storage.ErrBadLocator)
	assert.ErrorIs(t, d.Delete(context.Background(), ".hidden"), storage.ErrBadLocator)
	_, err = d.Stat(context.Background(), "a/b")
	assert.ErrorIs(t, err, storage.ErrBadLocator)
}
