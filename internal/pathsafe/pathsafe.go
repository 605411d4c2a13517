// Package pathsafe classifies stored paths and guards filesystem joins
// against traversal. Everything here is a pure string function except the
// existence checks callers layer on top.
package pathsafe

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/skyvault-io/skyvault/internal/store/models"
)

// Kind is the stored-path variant, distinguishable by inspection.
type Kind int

const (
	// KindLogicalFolder is a folder row with no on-disk analogue.
	KindLogicalFolder Kind = iota

	// KindAbsolute is a custom-drive entry at a literal filesystem path.
	KindAbsolute

	// KindStorageKey is a relative blob key under the upload root (local
	// driver, encrypted) or the configured S3 bucket.
	KindStorageKey
)

// Classify inspects a stored path value. nil means logical folder.
func Classify(path *string) Kind {
	switch {
	case path == nil || *path == "":
		return KindLogicalFolder
	case filepath.IsAbs(*path):
		return KindAbsolute
	default:
		return KindStorageKey
	}
}

// IsEncrypted reports whether bytes at this path are encrypted at rest.
// Only local-driver storage keys are; custom-drive and S3 bytes are stored
// as-is.
func IsEncrypted(path *string) bool {
	return Classify(path) == KindStorageKey
}

// ResolveForRead turns a stored path into an absolute location for byte
// access on the local filesystem. Storage keys join the upload root;
// absolute paths pass through; logical folders have no bytes.
func ResolveForRead(uploadRoot string, path *string) (string, error) {
	switch Classify(path) {
	case KindAbsolute:
		return *path, nil
	case KindStorageKey:
		return SafeJoin(uploadRoot, *path)
	default:
		return "", fmt.Errorf("%w: logical folder has no bytes", models.ErrInvalidPath)
	}
}

// reservedNames are Windows device names that must never appear as a path
// segment, case-insensitively, with or without an extension.
var reservedNames = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {},
	"com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {},
	"lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// CheckName validates a single path segment: no separators, no traversal,
// no NUL bytes, no reserved device names.
func CheckName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: empty or dot name", models.ErrInvalidPath)
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%w: name contains separator or NUL", models.ErrInvalidPath)
	}
	base := strings.ToLower(name)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	if _, ok := reservedNames[base]; ok {
		return fmt.Errorf("%w: reserved name %q", models.ErrInvalidPath, name)
	}
	return nil
}

// SafeJoin joins name (possibly multi-segment, as storage keys are) onto
// base and rejects anything that would escape it: "..", NUL bytes,
// absolute segments, reserved names.
func SafeJoin(base, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty path", models.ErrInvalidPath)
	}
	if strings.ContainsRune(name, '\x00') {
		return "", fmt.Errorf("%w: NUL byte in path", models.ErrInvalidPath)
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "\\") {
		return "", fmt.Errorf("%w: absolute segment", models.ErrInvalidPath)
	}
	for _, seg := range strings.FieldsFunc(name, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return "", fmt.Errorf("%w: traversal segment", models.ErrInvalidPath)
		}
		if err := CheckName(seg); err != nil {
			return "", err
		}
	}
	joined := filepath.Join(base, filepath.FromSlash(name))
	// Lexical containment check after cleaning, independent of the
	// per-segment checks above.
	cleanBase := filepath.Clean(base)
	if joined != cleanBase && !strings.HasPrefix(joined, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: escapes base directory", models.ErrInvalidPath)
	}
	return joined, nil
}

// WithinRoot reports whether abs is root itself or contained in it.
// The drive agent uses it to confine operations to a user's drive.
func WithinRoot(root, abs string) bool {
	root = filepath.Clean(root)
	abs = filepath.Clean(abs)
	return abs == root || strings.HasPrefix(abs, root+string(filepath.Separator))
}
