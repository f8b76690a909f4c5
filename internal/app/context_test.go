package app_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"protodesk/internal/app"
	"protodesk/internal/config"
)

func TestOpenSeedsDefaultStatuses(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	a, err := app.Open(ctx, dir, nil)
	require.NoError(t, err)
	statuses := a.Engine.Statuses.List()
	assert.Len(t, statuses, len(config.Default().Statuses))
	assert.Equal(t, "New", a.Engine.Statuses.Default().Name)
	require.NoError(t, a.Close())

	// a second open reuses the stored rows
	a, err = app.Open(ctx, dir, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.Len(t, a.Engine.Statuses.List(), len(statuses))
}

func TestOpenUsesWorkspaceConfig(t *testing.T) {
	dir := t.TempDir()
	yml := `statuses:
  - {id: 10, name: Open, order: 1}
  - {id: 20, name: Done, terminal: true, order: 2}
default_status: Open
`
	require.NoError(t, os.WriteFile(config.Path(dir), []byte(yml), 0o644))
	a, err := app.Open(context.Background(), dir, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, int64(10), a.Engine.Statuses.Default().ID)
	done, err := a.Engine.Statuses.Get(20)
	require.NoError(t, err)
	assert.True(t, done.IsTerminal)
}
