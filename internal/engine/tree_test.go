package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyvault-io/skyvault/internal/store/models"
)

func TestRename(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	row := env.upload(t, "draft.txt", "content", nil)

	renamed, err := env.engine.Rename(ctx, env.userID, row.ID, "final.txt")
	require.NoError(t, err)
	assert.Equal(t, "final.txt", renamed.Name)

	got, err := env.engine.Get(ctx, env.userID, row.ID)
	require.NoError(t, err)
	assert.Equal(t, "final.txt", got.Name)
	assert.Equal(t, "content", env.read(t, row.ID), "bytes are untouched")
}

func TestRenameConflict(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.upload(t, "taken.txt", "a", nil)
	row := env.upload(t, "free.txt", "b", nil)

	_, err := env.engine.Rename(ctx, env.userID, row.ID, "taken.txt")
	assert.ErrorIs(t, err, models.ErrConflict)

	// Renaming to the current name is a no-op, not a conflict.
	same, err := env.engine.Rename(ctx, env.userID, row.ID, "free.txt")
	require.NoError(t, err)
	assert.Equal(t, "free.txt", same.Name)
}

func TestRenameTrashedFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	row := env.upload(t, "doomed.txt", "x", nil)
	require.NoError(t, env.engine.SoftDelete(ctx, env.userID, []string{row.ID}))

	_, err := env.engine.Rename(ctx, env.userID, row.ID, "revived.txt")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMove(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	docs := env.mkdir(t, "docs", nil)
	row := env.upload(t, "loose.txt", "x", nil)

	require.NoError(t, env.engine.Move(ctx, env.userID, []string{row.ID}, &docs.ID))

	children, err := env.engine.List(ctx, env.userID, &docs.ID, "name", "asc")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, row.ID, children[0].ID)

	rootRows, err := env.engine.List(ctx, env.userID, nil, "name", "asc")
	require.NoError(t, err)
	require.Len(t, rootRows, 1)
	assert.Equal(t, docs.ID, rootRows[0].ID)
}

func TestMoveIntoOwnSubtreeFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	outer := env.mkdir(t, "outer", nil)
	inner := env.mkdir(t, "inner", &outer.ID)

	err := env.engine.Move(ctx, env.userID, []string{outer.ID}, &inner.ID)
	assert.ErrorIs(t, err, models.ErrConflict)

	err = env.engine.Move(ctx, env.userID, []string{outer.ID}, &outer.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestMoveBatchAtomicity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	docs := env.mkdir(t, "docs", nil)
	row := env.upload(t, "a.txt", "x", nil)

	// One missing id fails the whole batch before anything moves.
	err := env.engine.Move(ctx, env.userID, []string{row.ID, "0000000000000000"}, &docs.ID)
	require.ErrorIs(t, err, models.ErrNotFound)

	got, err := env.engine.Get(ctx, env.userID, row.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ParentID)
}

func TestCopyFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	docs := env.mkdir(t, "docs", nil)
	src := env.upload(t, "orig.txt", "copy me", nil)

	require.NoError(t, env.engine.Copy(ctx, env.userID, []string{src.ID}, &docs.ID))

	children, err := env.engine.List(ctx, env.userID, &docs.ID, "name", "asc")
	require.NoError(t, err)
	require.Len(t, children, 1)
	dup := children[0]

	assert.Equal(t, "orig.txt", dup.Name)
	assert.NotEqual(t, src.ID, dup.ID)
	assert.Equal(t, "copy me", env.read(t, dup.ID))

	// Source is untouched and independent of the copy.
	assert.Equal(t, "copy me", env.read(t, src.ID))
}

func TestCopyPreservesModified(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	src := env.upload(t, "aged.txt", "x", nil)
	old := time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, env.store.DB().Model(&models.File{}).
		Where("id = ?", src.ID).
		Update("modified", old).Error)

	docs := env.mkdir(t, "docs", nil)
	require.NoError(t, env.engine.Copy(ctx, env.userID, []string{src.ID}, &docs.ID))

	children, err := env.engine.List(ctx, env.userID, &docs.ID, "name", "asc")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.WithinDuration(t, old, children[0].Modified, time.Second)
}

func TestCopyTreeRecursive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	src := env.mkdir(t, "project", nil)
	sub := env.mkdir(t, "assets", &src.ID)
	env.upload(t, "readme.md", "hello", &src.ID)
	env.upload(t, "logo.png", "png", &sub.ID)

	dst := env.mkdir(t, "backup", nil)
	require.NoError(t, env.engine.Copy(ctx, env.userID, []string{src.ID}, &dst.ID))

	copies, err := env.engine.List(ctx, env.userID, &dst.ID, "name", "asc")
	require.NoError(t, err)
	require.Len(t, copies, 1)
	require.Equal(t, "project", copies[0].Name)

	inner, err := env.engine.List(ctx, env.userID, &copies[0].ID, "name", "asc")
	require.NoError(t, err)
	require.Len(t, inner, 2)

	var assetsCopy *models.File
	for _, row := range inner {
		if row.IsFolder() {
			assetsCopy = row
		}
	}
	require.NotNil(t, assetsCopy)

	deep, err := env.engine.List(ctx, env.userID, &assetsCopy.ID, "name", "asc")
	require.NoError(t, err)
	require.Len(t, deep, 1)
	assert.Equal(t, "hello", env.read(t, inner[1].ID))
}

func TestCopyIntoSameParentSuffixes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	src := env.upload(t, "doc.txt", "x", nil)
	require.NoError(t, env.engine.Copy(ctx, env.userID, []string{src.ID}, nil))

	rows, err := env.engine.List(ctx, env.userID, nil, "name", "asc")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "doc (1).txt", rows[0].Name)
	assert.Equal(t, "doc.txt", rows[1].Name)
}

func TestCopyIntoOwnSubtreeFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	outer := env.mkdir(t, "outer", nil)
	inner := env.mkdir(t, "inner", &outer.ID)

	err := env.engine.Copy(ctx, env.userID, []string{outer.ID}, &inner.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestSetStarredIsShallow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	docs := env.mkdir(t, "docs", nil)
	child := env.upload(t, "inside.txt", "x", &docs.ID)

	require.NoError(t, env.engine.SetStarred(ctx, env.userID, []string{docs.ID}, true))

	starred, err := env.engine.ListStarred(ctx, env.userID, "name", "asc")
	require.NoError(t, err)
	require.Len(t, starred, 1)
	assert.Equal(t, docs.ID, starred[0].ID)

	got, err := env.engine.Get(ctx, env.userID, child.ID)
	require.NoError(t, err)
	assert.False(t, got.Starred, "stars do not propagate")

	require.NoError(t, env.engine.SetStarred(ctx, env.userID, []string{docs.ID}, false))
	starred, err = env.engine.ListStarred(ctx, env.userID, "name", "asc")
	require.NoError(t, err)
	assert.Empty(t, starred)
}

// stubBinder satisfies ShareBinder without a database.
type stubBinder struct {
	minted  []string
	revoked []string
}

func (b *stubBinder) MintOrReuse(_ context.Context, _ string, fileIDs []string, _ *time.Time) (map[string]string, error) {
	b.minted = append(b.minted, fileIDs...)
	out := map[string]string{}
	for _, id := range fileIDs {
		out[id] = "token-" + id
	}
	return out, nil
}

func (b *stubBinder) Revoke(_ context.Context, _ string, fileIDs []string) error {
	b.revoked = append(b.revoked, fileIDs...)
	return nil
}

func TestSetSharedPropagates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	docs := env.mkdir(t, "docs", nil)
	child := env.upload(t, "inside.txt", "x", &docs.ID)

	binder := &stubBinder{}
	tokens, err := env.engine.SetShared(ctx, env.userID, []string{docs.ID}, true, binder)
	require.NoError(t, err)
	assert.Equal(t, "token-"+docs.ID, tokens[docs.ID])
	assert.Equal(t, []string{docs.ID}, binder.minted, "only roots get links")

	got, err := env.engine.Get(ctx, env.userID, child.ID)
	require.NoError(t, err)
	assert.True(t, got.Shared, "the flag propagates to descendants")

	// Unsharing releases the whole subtree from links.
	tokens, err = env.engine.SetShared(ctx, env.userID, []string{docs.ID}, false, binder)
	require.NoError(t, err)
	assert.Nil(t, tokens)
	assert.ElementsMatch(t, []string{docs.ID, child.ID}, binder.revoked)

	got, err = env.engine.Get(ctx, env.userID, child.ID)
	require.NoError(t, err)
	assert.False(t, got.Shared)
}
