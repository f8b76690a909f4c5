package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"protodesk/internal/db"
	"protodesk/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()

	v1, err := migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v1, 1)

	v2, err := migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM protocol_statuses`).Scan(&n))
	assert.Zero(t, n)
}
