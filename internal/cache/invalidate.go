package cache

import "context"

// Invalidator bundles the mandatory key deletions after each mutation
// family. Mutations call exactly one of these after a successful commit;
// readers may observe stale listings for at most one scan cycle.
type Invalidator struct {
	cache *Cache
}

// NewInvalidator wraps a cache.
func NewInvalidator(c *Cache) *Invalidator {
	return &Invalidator{cache: c}
}

// treeBase drops the keys every tree mutation dirties: the listings of
// the affected parents, stats, storage, and all cached searches.
func (i *Invalidator) treeBase(ctx context.Context, userID string, parents []*string) {
	seen := map[string]struct{}{}
	for _, p := range parents {
		pattern := PatternListing(userID, p)
		if _, ok := seen[pattern]; ok {
			continue
		}
		seen[pattern] = struct{}{}
		i.cache.DeletePattern(ctx, pattern)
	}
	i.cache.Delete(ctx, KeyStats(userID), KeyStorage(userID))
	i.cache.DeletePattern(ctx, PatternSearch(userID))
}

// TreeChanged covers create, rename, move and copy.
func (i *Invalidator) TreeChanged(ctx context.Context, userID string, parents []*string, fileIDs []string) {
	i.treeBase(ctx, userID, parents)
	for _, id := range fileIDs {
		i.cache.Delete(ctx, KeyFile(id, userID))
	}
}

// TrashChanged covers soft-delete, restore and purge: everything
// TreeChanged drops, plus trash listings and the size entries of the
// affected folders.
func (i *Invalidator) TrashChanged(ctx context.Context, userID string, parents []*string, fileIDs, folderIDs []string) {
	i.TreeChanged(ctx, userID, parents, fileIDs)
	i.cache.DeletePattern(ctx, PatternTrash(userID))
	i.cache.DeletePattern(ctx, PatternStarred(userID))
	i.cache.DeletePattern(ctx, PatternShared(userID))
	for _, id := range folderIDs {
		i.cache.DeletePattern(ctx, PatternFolderSize(userID, id))
	}
}

// FlagsChanged covers star and share toggles.
func (i *Invalidator) FlagsChanged(ctx context.Context, userID string, starred bool, fileIDs []string) {
	if starred {
		i.cache.DeletePattern(ctx, PatternStarred(userID))
	} else {
		i.cache.DeletePattern(ctx, PatternShared(userID))
	}
	i.cache.Delete(ctx, KeyStats(userID))
	for _, id := range fileIDs {
		i.cache.Delete(ctx, KeyFile(id, userID))
	}
}

// DriveChanged drops the custom-drive settings entry.
func (i *Invalidator) DriveChanged(ctx context.Context, userID string) {
	i.cache.Delete(ctx, KeyCustomDrive(userID))
}
