package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forestlog/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()

	migrations, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	latest := migrations[len(migrations)-1].Version

	v, err := MigrateContext(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, latest, v)

	v, err = MigrateContext(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, latest, v)

	got, err := Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, latest, got)

	for _, table := range []string{"users", "logs", "streaks", "milestones", "shared_forests", "forest_likes", "api_keys", "events"} {
		var name string
		err := conn.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}
