package cache

import (
	"context"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

// matchPattern approximates redis glob matching for the simple
// prefix-star patterns the invalidator uses.
func matchPattern(pattern, key string) bool {
	ok, err := path.Match(pattern, key)
	return err == nil && ok
}

func TestListingPatternCoversAllSorts(t *testing.T) {
	parent := strptr("f1a2b3c4d5e6f708")
	pattern := PatternListing("u1", parent)

	for _, sortBy := range []string{"name", "size", "modified", "type"} {
		for _, order := range []string{"asc", "desc"} {
			key := KeyListing("u1", parent, sortBy, order)
			assert.True(t, matchPattern(pattern, key), key)
		}
	}

	// Another parent's listings stay untouched.
	other := KeyListing("u1", strptr("aaaabbbbccccdddd"), "name", "asc")
	assert.False(t, matchPattern(pattern, other))
}

func TestRootListingScope(t *testing.T) {
	key := KeyListing("u1", nil, "name", "asc")
	assert.Contains(t, key, ":"+RootScope+":")
	assert.Equal(t, key, KeyListing("u1", strptr(""), "name", "asc"))
	assert.True(t, matchPattern(PatternListing("u1", nil), key))
}

func TestFlagListingPatterns(t *testing.T) {
	assert.True(t, matchPattern(PatternStarred("u1"), KeyStarred("u1", "name", "asc")))
	assert.True(t, matchPattern(PatternShared("u1"), KeyShared("u1", "size", "desc")))
	assert.True(t, matchPattern(PatternTrash("u1"), KeyTrash("u1", "modified", "desc")))

	// Flag listings must not collide with directory listings: "starred",
	// "shared" and "trash" are not valid parent ids (ids are 16 hex chars).
	assert.False(t, matchPattern(PatternListing("u1", strptr("starred")), KeyListing("u1", nil, "name", "asc")))
}

func TestSearchKeysHashQueries(t *testing.T) {
	key := KeySearch("u1", "tax report '24", 50)
	assert.NotContains(t, key, "tax")
	assert.True(t, matchPattern(PatternSearch("u1"), key))

	// Different queries and limits get distinct keys.
	assert.NotEqual(t, key, KeySearch("u1", "tax report '25", 50))
	assert.NotEqual(t, key, KeySearch("u1", "tax report '24", 100))
}

func TestKeysAreUserScoped(t *testing.T) {
	builders := map[string][2]string{
		"file":    {KeyFile("f1", "u1"), KeyFile("f1", "u2")},
		"stats":   {KeyStats("u1"), KeyStats("u2")},
		"storage": {KeyStorage("u1"), KeyStorage("u2")},
		"size":    {KeyFolderSize("u1", "f1"), KeyFolderSize("u2", "f1")},
		"drive":   {KeyCustomDrive("u1"), KeyCustomDrive("u2")},
	}
	for name, pair := range builders {
		assert.NotEqual(t, pair[0], pair[1], name)
	}
}

func TestHashEmail(t *testing.T) {
	h := HashEmail("user@example.com")
	require.Len(t, h, 32)
	assert.False(t, strings.Contains(h, "@"))
	assert.Equal(t, h, HashEmail("user@example.com"))
	assert.NotEqual(t, h, HashEmail("other@example.com"))
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	var out []string
	assert.False(t, c.GetJSON(ctx, "k", &out))
	c.SetJSON(ctx, "k", []string{"v"}, TTLListing)
	c.Delete(ctx, "k")
	c.DeletePattern(ctx, "k:*")
	assert.NoError(t, c.Close())
}

func TestInvalidatorOnNilCache(t *testing.T) {
	inv := NewInvalidator(nil)
	ctx := context.Background()

	inv.TreeChanged(ctx, "u1", []*string{nil, strptr("p1")}, []string{"f1"})
	inv.TrashChanged(ctx, "u1", []*string{nil}, []string{"f1"}, []string{"d1"})
	inv.FlagsChanged(ctx, "u1", true, []string{"f1"})
	inv.DriveChanged(ctx, "u1")
}
