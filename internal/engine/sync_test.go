package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyvault-io/skyvault/internal/store/models"
)

// driveUser enables the custom drive on the env's user and returns the
// refreshed row plus the drive root.
func driveUser(t *testing.T, env *testEnv) (*models.User, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, env.store.UpdateCustomDrive(context.Background(), env.userID, true, &root, nil))
	user, err := env.store.GetUser(context.Background(), env.userID)
	require.NoError(t, err)
	return user, root
}

func TestSyncCreateFileAndFolder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, root := driveUser(t, env)

	dirPath := filepath.Join(root, "photos")
	dir, err := env.engine.SyncCreate(ctx, user, dirPath, true, 0, time.Now())
	require.NoError(t, err)
	assert.True(t, dir.IsFolder())
	assert.Nil(t, dir.ParentID, "entries directly under the drive root live at tree root")

	filePath := filepath.Join(dirPath, "shot.jpg")
	row, err := env.engine.SyncCreate(ctx, user, filePath, false, 2048, time.Now())
	require.NoError(t, err)
	require.NotNil(t, row.ParentID)
	assert.Equal(t, dir.ID, *row.ParentID)
	assert.Equal(t, int64(2048), row.Size)
	require.NotNil(t, row.MimeType)
	assert.Equal(t, "image/jpeg", *row.MimeType)
	require.NotNil(t, row.Path)
	assert.Equal(t, filePath, *row.Path)
}

func TestSyncCreateUntrackedParentSurfacesAtRoot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, root := driveUser(t, env)

	// The parent directory has no row yet; the entry still lands in the tree.
	orphan := filepath.Join(root, "unseen", "deep.txt")
	row, err := env.engine.SyncCreate(ctx, user, orphan, false, 1, time.Now())
	require.NoError(t, err)
	assert.Nil(t, row.ParentID)
}

func TestSyncCreateRequiresDrivePath(t *testing.T) {
	env := newTestEnv(t)

	user, err := env.store.GetUser(context.Background(), env.userID)
	require.NoError(t, err)
	require.Nil(t, user.CustomDrivePath)

	_, err = env.engine.SyncCreate(context.Background(), user, "/tmp/x", false, 1, time.Now())
	assert.ErrorIs(t, err, models.ErrInvalidPath)
}

func TestSyncUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, root := driveUser(t, env)

	path := filepath.Join(root, "grow.bin")
	row, err := env.engine.SyncCreate(ctx, user, path, false, 10, time.Now())
	require.NoError(t, err)

	later := time.Now().Add(time.Minute).UTC().Truncate(time.Second)
	require.NoError(t, env.engine.SyncUpdate(ctx, env.userID, path, 999, later))

	got, err := env.engine.Get(ctx, env.userID, row.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(999), got.Size)
	assert.WithinDuration(t, later, got.Modified, time.Second)

	err = env.engine.SyncUpdate(ctx, env.userID, filepath.Join(root, "missing"), 1, later)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSyncRemoveTakesDescendants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, root := driveUser(t, env)

	dirPath := filepath.Join(root, "project")
	dir, err := env.engine.SyncCreate(ctx, user, dirPath, true, 0, time.Now())
	require.NoError(t, err)
	inner, err := env.engine.SyncCreate(ctx, user, filepath.Join(dirPath, "main.go"), false, 5, time.Now())
	require.NoError(t, err)

	require.NoError(t, env.engine.SyncRemove(ctx, env.userID, dirPath))

	for _, id := range []string{dir.ID, inner.ID} {
		_, err := env.engine.Get(ctx, env.userID, id)
		assert.ErrorIs(t, err, models.ErrNotFound)
	}

	// The child path is already gone with its parent.
	err = env.engine.SyncRemove(ctx, env.userID, filepath.Join(dirPath, "main.go"))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSyncAuditsDriveActions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user, root := driveUser(t, env)

	path := filepath.Join(root, "audited.txt")
	_, err := env.engine.SyncCreate(ctx, user, path, false, 1, time.Now())
	require.NoError(t, err)
	require.NoError(t, env.engine.SyncRemove(ctx, env.userID, path))

	actions := env.auditActions()
	assert.Contains(t, actions, "drive_sync_create")
	assert.Contains(t, actions, "drive_sync_remove")
}
