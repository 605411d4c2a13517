package share

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/skyvault-io/skyvault/internal/store"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

func newTestService(t *testing.T) (*Service, *store.Store, string) {
	t.Helper()
	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	user := &models.User{Email: "owner@example.com"}
	require.NoError(t, st.CreateUser(context.Background(), user, "secret"))

	return NewService(st), st, user.ID
}

func insertFile(t *testing.T, st *store.Store, userID, name string) *models.File {
	t.Helper()
	f := &models.File{
		ID:       models.NewID(),
		UserID:   userID,
		Name:     name,
		Type:     models.TypeFile,
		Size:     10,
		Modified: time.Now().UTC(),
	}
	require.NoError(t, st.WithTx(context.Background(), func(tx *gorm.DB) error {
		return store.InsertFile(tx, f)
	}))
	return f
}

func TestMintAndResolve(t *testing.T) {
	svc, st, uid := newTestService(t)
	ctx := context.Background()

	f1 := insertFile(t, st, uid, "report.pdf")
	f2 := insertFile(t, st, uid, "notes.txt")

	tokens, err := svc.MintOrReuse(ctx, uid, []string{f1.ID, f2.ID}, nil)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, tokens[f1.ID], tokens[f2.ID], "one link covers the whole batch")

	files, err := svc.Resolve(ctx, tokens[f1.ID])
	require.NoError(t, err)
	require.Len(t, files, 2)
}

func TestMintReusesExistingLink(t *testing.T) {
	svc, st, uid := newTestService(t)
	ctx := context.Background()

	f1 := insertFile(t, st, uid, "a.txt")
	f2 := insertFile(t, st, uid, "b.txt")

	first, err := svc.MintOrReuse(ctx, uid, []string{f1.ID}, nil)
	require.NoError(t, err)

	// A batch overlapping an existing link is absorbed into it.
	second, err := svc.MintOrReuse(ctx, uid, []string{f1.ID, f2.ID}, nil)
	require.NoError(t, err)
	assert.Equal(t, first[f1.ID], second[f2.ID])

	files, err := svc.Resolve(ctx, first[f1.ID])
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestMintRejectsForeignFiles(t *testing.T) {
	svc, st, uid := newTestService(t)
	ctx := context.Background()

	other := &models.User{Email: "other@example.com"}
	require.NoError(t, st.CreateUser(ctx, other, "secret"))
	foreign := insertFile(t, st, other.ID, "theirs.txt")

	_, err := svc.MintOrReuse(ctx, uid, []string{foreign.ID}, nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRevoke(t *testing.T) {
	svc, st, uid := newTestService(t)
	ctx := context.Background()

	f1 := insertFile(t, st, uid, "a.txt")
	f2 := insertFile(t, st, uid, "b.txt")

	tokens, err := svc.MintOrReuse(ctx, uid, []string{f1.ID, f2.ID}, nil)
	require.NoError(t, err)
	token := tokens[f1.ID]

	require.NoError(t, svc.Revoke(ctx, uid, []string{f1.ID}))

	files, err := svc.Resolve(ctx, token)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, f2.ID, files[0].ID)

	// Removing the last file deletes the link itself.
	require.NoError(t, svc.Revoke(ctx, uid, []string{f2.ID}))
	_, err = svc.Resolve(ctx, token)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestResolveRejectsBadTokens(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, token := range []string{"", "short", "has spaces here and more padding!", "../../etc/passwd-paddddddddddding"} {
		_, err := svc.Resolve(ctx, token)
		assert.ErrorIs(t, err, models.ErrNotFound, token)
	}

	// Well-formed but unknown.
	_, err := svc.Resolve(ctx, models.NewShareToken())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestResolveExpiredLink(t *testing.T) {
	svc, st, uid := newTestService(t)
	ctx := context.Background()

	f := insertFile(t, st, uid, "old.txt")
	past := time.Now().Add(-time.Hour)
	tokens, err := svc.MintOrReuse(ctx, uid, []string{f.ID}, &past)
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, tokens[f.ID])
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestResolveSkipsTrashedFiles(t *testing.T) {
	svc, st, uid := newTestService(t)
	ctx := context.Background()

	f := insertFile(t, st, uid, "doomed.txt")
	tokens, err := svc.MintOrReuse(ctx, uid, []string{f.ID}, nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, st.WithTx(ctx, func(tx *gorm.DB) error {
		return store.MarkDeleted(tx, uid, []string{f.ID}, now)
	}))

	files, err := svc.Resolve(ctx, tokens[f.ID])
	require.NoError(t, err)
	assert.Empty(t, files)
}
