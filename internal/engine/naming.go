package engine

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"gorm.io/gorm"

	"github.com/skyvault-io/skyvault/internal/store"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

// maxDuplicateSuffix bounds the " (N)" scheme. Beyond it the operation
// fails with ErrTooManyDuplicates.
const maxDuplicateSuffix = 10000

// splitName separates a display name into stem and extension, so the
// duplicate suffix lands before the extension: "x.bin" becomes "x (1).bin".
func splitName(name string) (stem, ext string) {
	ext = filepath.Ext(name)
	// A leading dot is a hidden-file prefix, not an extension.
	if ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}

// withSuffix renders the Nth duplicate of a name. N=0 is the name itself.
func withSuffix(name string, n int) string {
	if n == 0 {
		return name
	}
	stem, ext := splitName(name)
	return fmt.Sprintf("%s (%d)%s", stem, n, ext)
}

// uniqueName finds the first " (N)" variant of name absent from the taken
// set.
func uniqueName(name string, taken map[string]struct{}) (string, error) {
	for n := 0; n <= maxDuplicateSuffix; n++ {
		candidate := withSuffix(name, n)
		if _, ok := taken[candidate]; !ok {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q", models.ErrTooManyDuplicates, name)
}

// uniqueSiblingName resolves name against the live siblings under a parent,
// inside the caller's transaction.
func uniqueSiblingName(tx *gorm.DB, userID string, parentID *string, name string) (string, error) {
	taken, err := store.SiblingNames(tx, userID, parentID)
	if err != nil {
		return "", err
	}
	return uniqueName(name, taken)
}

// uniqueOnDisk resolves name against the entries of an on-disk directory
// through the drive agent.
func (e *Engine) uniqueOnDisk(ctx context.Context, root, dir, name string) (string, error) {
	for n := 0; n <= maxDuplicateSuffix; n++ {
		candidate := withSuffix(name, n)
		exists, err := e.drive.Exists(ctx, root, filepath.Join(dir, candidate))
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q", models.ErrTooManyDuplicates, name)
}

// mimeByExtension wraps the platform mime table lookup, stripping
// parameters so stored types stay plain.
func mimeByExtension(ext string) string {
	t := mime.TypeByExtension(ext)
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}
