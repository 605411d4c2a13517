package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"time"
)

// TTLs per key family.
const (
	TTLListing     = 60 * time.Second
	TTLFile        = 300 * time.Second
	TTLFolderSize  = 300 * time.Second
	TTLSearch      = 120 * time.Second
	TTLStats       = 300 * time.Second
	TTLStorage     = 300 * time.Second
	TTLCustomDrive = 60 * time.Second
)

// RootScope is the parent segment used for root-level listings.
const RootScope = "root"

// Key builders. These are the only places cache keys are spelled out, so
// the scheme stays canonical. Free text (search queries, emails) is
// hashed, never embedded; passwords are never cached at all.

// KeyCustomDrive is the per-user custom drive settings entry.
func KeyCustomDrive(userID string) string {
	return fmt.Sprintf("user:%s:customdrive", userID)
}

// KeyListing is a directory listing fingerprint.
func KeyListing(userID string, parentID *string, sortBy, order string) string {
	return fmt.Sprintf("files:%s:%s:%s:%s", userID, parentScope(parentID), sortBy, order)
}

// KeyFile is a single file row.
func KeyFile(fileID, userID string) string {
	return fmt.Sprintf("file:%s:%s", fileID, userID)
}

// KeyFolderSize is a computed folder byte-sum.
func KeyFolderSize(userID, folderID string) string {
	return fmt.Sprintf("folder:%s:%s:size", userID, folderID)
}

// KeySearch fingerprints a search result set. The query is FNV-64a hashed
// so free text never appears in the keyspace.
func KeySearch(userID, query string, limit int) string {
	return fmt.Sprintf("search:%s:%s:%d", userID, hashQuery(query), limit)
}

// KeyStats is the per-user aggregate counters entry.
func KeyStats(userID string) string {
	return fmt.Sprintf("stats:%s", userID)
}

// KeyStorage is the per-user storage usage entry.
func KeyStorage(userID string) string {
	return fmt.Sprintf("storage:%s", userID)
}

// KeyStarred is a starred-files listing.
func KeyStarred(userID, sortBy, order string) string {
	return fmt.Sprintf("files:%s:starred:%s:%s", userID, sortBy, order)
}

// KeyShared is a shared-files listing.
func KeyShared(userID, sortBy, order string) string {
	return fmt.Sprintf("files:%s:shared:%s:%s", userID, sortBy, order)
}

// KeyTrash is a trash listing.
func KeyTrash(userID, sortBy, order string) string {
	return fmt.Sprintf("files:%s:trash:%s:%s", userID, sortBy, order)
}

// Prefix patterns for invalidation.

// PatternListing matches every listing under one parent regardless of sort.
func PatternListing(userID string, parentID *string) string {
	return fmt.Sprintf("files:%s:%s:*", userID, parentScope(parentID))
}

// PatternSearch matches every cached search for the user.
func PatternSearch(userID string) string {
	return fmt.Sprintf("search:%s:*", userID)
}

// PatternStarred matches every starred listing for the user.
func PatternStarred(userID string) string {
	return fmt.Sprintf("files:%s:starred:*", userID)
}

// PatternShared matches every shared listing for the user.
func PatternShared(userID string) string {
	return fmt.Sprintf("files:%s:shared:*", userID)
}

// PatternTrash matches every trash listing for the user.
func PatternTrash(userID string) string {
	return fmt.Sprintf("files:%s:trash:*", userID)
}

// PatternFolderSize matches the size entry of one folder.
func PatternFolderSize(userID, folderID string) string {
	return fmt.Sprintf("folder:%s:%s:*", userID, folderID)
}

func parentScope(parentID *string) string {
	if parentID == nil || *parentID == "" {
		return RootScope
	}
	return *parentID
}

// hashQuery is FNV-64a over the raw query text.
func hashQuery(q string) string {
	h := fnv.New64a()
	h.Write([]byte(q))
	return fmt.Sprintf("%016x", h.Sum64())
}

// HashEmail hashes an email for use in a cache key. SHA-256, truncated to
// 16 bytes of hex, so addresses never appear in the keyspace.
func HashEmail(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:16])
}
