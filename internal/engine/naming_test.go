package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skyvault-io/skyvault/internal/store/models"
)

func TestSplitName(t *testing.T) {
	cases := []struct {
		name, stem, ext string
	}{
		{"report.pdf", "report", ".pdf"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{"noext", "noext", ""},
		{".hidden", ".hidden", ""},
		{".hidden.txt", ".hidden", ".txt"},
		{"trailingdot.", "trailingdot", "."},
	}
	for _, tc := range cases {
		stem, ext := splitName(tc.name)
		assert.Equal(t, tc.stem, stem, tc.name)
		assert.Equal(t, tc.ext, ext, tc.name)
	}
}

func TestWithSuffix(t *testing.T) {
	assert.Equal(t, "report.pdf", withSuffix("report.pdf", 0))
	assert.Equal(t, "report (1).pdf", withSuffix("report.pdf", 1))
	assert.Equal(t, "docs (3)", withSuffix("docs", 3))
	assert.Equal(t, ".gitignore (2)", withSuffix(".gitignore", 2))
}

func TestUniqueName(t *testing.T) {
	taken := map[string]struct{}{
		"report.pdf":     {},
		"report (1).pdf": {},
	}

	got, err := uniqueName("report.pdf", taken)
	require.NoError(t, err)
	assert.Equal(t, "report (2).pdf", got)

	got, err = uniqueName("fresh.txt", taken)
	require.NoError(t, err)
	assert.Equal(t, "fresh.txt", got)
}

func TestUniqueNameExhaustion(t *testing.T) {
	taken := make(map[string]struct{}, maxDuplicateSuffix+1)
	for n := 0; n <= maxDuplicateSuffix; n++ {
		taken[withSuffix("x.bin", n)] = struct{}{}
	}
	_, err := uniqueName("x.bin", taken)
	assert.ErrorIs(t, err, models.ErrTooManyDuplicates)
}

func TestMimeByExtension(t *testing.T) {
	assert.Equal(t, "application/pdf", mimeByExtension(".pdf"))
	assert.Empty(t, mimeByExtension(".no-such-extension"))

	// Parameters like charset are stripped.
	assert.NotContains(t, mimeByExtension(".html"), ";")
	assert.NotContains(t, mimeByExtension(".txt"), ";")
}
