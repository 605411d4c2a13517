package pathsafe

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyvault-io/skyvault/internal/store/models"
)

func strptr(s string) *string { return &s }

func TestClassify(t *testing.T) {
	assert.Equal(t, KindLogicalFolder, Classify(nil))
	assert.Equal(t, KindLogicalFolder, Classify(strptr("")))
	assert.Equal(t, KindAbsolute, Classify(strptr("/home/user/drive/file.txt")))
	assert.Equal(t, KindStorageKey, Classify(strptr("a1b2c3d4e5f60708.pdf")))
}

func TestIsEncrypted(t *testing.T) {
	assert.False(t, IsEncrypted(nil))
	assert.False(t, IsEncrypted(strptr("/abs/path")))
	assert.True(t, IsEncrypted(strptr("a1b2c3d4e5f60708.bin")))
}

func TestResolveForRead(t *testing.T) {
	got, err := ResolveForRead("/data/uploads", strptr("/drive/photo.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "/drive/photo.jpg", got)

	got, err = ResolveForRead("/data/uploads", strptr("a1b2c3d4.jpg"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/uploads", "a1b2c3d4.jpg"), got)

	_, err = ResolveForRead("/data/uploads", nil)
	assert.ErrorIs(t, err, models.ErrInvalidPath)
}

func TestCheckName(t *testing.T) {
	valid := []string{"file.txt", "My Documents", "a", ".hidden", "x (1).bin", "日本語.pdf"}
	for _, name := range valid {
		assert.NoError(t, CheckName(name), name)
	}

	invalid := []string{"", ".", "..", "a/b", `a\b`, "nul", "NUL", "con.txt", "COM1.log", "a\x00b"}
	for _, name := range invalid {
		assert.ErrorIs(t, CheckName(name), models.ErrInvalidPath, name)
	}
}

func TestCheckNameReservedNeedsFullBase(t *testing.T) {
	// "console" and "nullable" only share a prefix with a device name.
	assert.NoError(t, CheckName("console.txt"))
	assert.NoError(t, CheckName("nullable"))
}

func TestSafeJoin(t *testing.T) {
	got, err := SafeJoin("/data/uploads", "a1b2c3d4.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/uploads", "a1b2c3d4.pdf"), got)

	got, err = SafeJoin("/data/uploads", "sub/key.bin")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/uploads", "sub", "key.bin"), got)

	bad := []string{
		"",
		"../escape",
		"sub/../../escape",
		"/etc/passwd",
		`\\server\share`,
		"a\x00b",
		"sub/nul/key",
	}
	for _, name := range bad {
		_, err := SafeJoin("/data/uploads", name)
		assert.ErrorIs(t, err, models.ErrInvalidPath, name)
	}
}

func TestWithinRoot(t *testing.T) {
	assert.True(t, WithinRoot("/drive", "/drive"))
	assert.True(t, WithinRoot("/drive", "/drive/sub/file"))
	assert.True(t, WithinRoot("/drive/", "/drive/sub"))
	assert.False(t, WithinRoot("/drive", "/drive2/file"))
	assert.False(t, WithinRoot("/drive", "/etc/passwd"))
	assert.False(t, WithinRoot("/drive", "/drive/../etc"))
}
