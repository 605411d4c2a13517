package engine

import (
	"context"
	"sort"

	"github.com/skyvault-io/skyvault/internal/cache"
	"github.com/skyvault-io/skyvault/internal/store"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

// List returns the live children of a folder (nil parent means root) in
// the requested order. Size sorts fill computed folder sizes first and
// stable-sort in process, since the database only knows file sizes.
func (e *Engine) List(ctx context.Context, userID string, parentID *string, sortBy, order string) ([]*models.File, error) {
	key := cache.KeyListing(userID, parentID, sortBy, order)
	var cached []*models.File
	if e.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	files, err := e.store.ListChildren(ctx, userID, parentID, sortBy, order)
	if err != nil {
		return nil, err
	}
	if sortBy == "size" {
		if err := e.fillFolderSizes(ctx, userID, files); err != nil {
			return nil, err
		}
		stableSortBySize(files, order)
	}

	e.cache.SetJSON(ctx, key, files, cache.TTLListing)
	return files, nil
}

// ListStarred returns the user's live starred rows.
func (e *Engine) ListStarred(ctx context.Context, userID, sortBy, order string) ([]*models.File, error) {
	key := cache.KeyStarred(userID, sortBy, order)
	var cached []*models.File
	if e.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}
	files, err := e.store.ListFlagged(ctx, userID, "starred", sortBy, order)
	if err != nil {
		return nil, err
	}
	e.cache.SetJSON(ctx, key, files, cache.TTLListing)
	return files, nil
}

// ListShared returns the user's live shared rows.
func (e *Engine) ListShared(ctx context.Context, userID, sortBy, order string) ([]*models.File, error) {
	key := cache.KeyShared(userID, sortBy, order)
	var cached []*models.File
	if e.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}
	files, err := e.store.ListFlagged(ctx, userID, "shared", sortBy, order)
	if err != nil {
		return nil, err
	}
	e.cache.SetJSON(ctx, key, files, cache.TTLListing)
	return files, nil
}

// ListTrash returns the user's trashed rows. The deletedAt sort column is
// accepted on top of the usual vocabulary; size sorts happen in process.
func (e *Engine) ListTrash(ctx context.Context, userID, sortBy, order string) ([]*models.File, error) {
	key := cache.KeyTrash(userID, sortBy, order)
	var cached []*models.File
	if e.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}
	files, err := e.store.ListTrash(ctx, userID, sortBy, order)
	if err != nil {
		return nil, err
	}
	if sortBy == "size" {
		stableSortBySize(files, order)
	}
	e.cache.SetJSON(ctx, key, files, cache.TTLListing)
	return files, nil
}

// FolderSize computes the byte sum of a folder's live descendants,
// cache first.
func (e *Engine) FolderSize(ctx context.Context, userID, folderID string) (int64, error) {
	key := cache.KeyFolderSize(userID, folderID)
	var size int64
	if e.cache.GetJSON(ctx, key, &size) {
		return size, nil
	}
	size, err := e.store.FolderSize(ctx, userID, folderID)
	if err != nil {
		return 0, err
	}
	e.cache.SetJSON(ctx, key, size, cache.TTLFolderSize)
	return size, nil
}

// fillFolderSizes replaces the stored zero on folder rows with their
// computed size, for size-ordered listings.
func (e *Engine) fillFolderSizes(ctx context.Context, userID string, files []*models.File) error {
	for _, f := range files {
		if !f.IsFolder() {
			continue
		}
		size, err := e.FolderSize(ctx, userID, f.ID)
		if err != nil {
			return err
		}
		f.Size = size
	}
	return nil
}

// stableSortBySize orders rows by size in process, keeping the database
// order for ties.
func stableSortBySize(files []*models.File, order string) {
	asc := order == "asc" || order == "ASC"
	sort.SliceStable(files, func(i, j int) bool {
		if asc {
			return files[i].Size < files[j].Size
		}
		return files[i].Size > files[j].Size
	})
}

// Search runs the fuzzy name search, cache first. Free query text never
// reaches the cache keyspace; the key carries a hash.
func (e *Engine) Search(ctx context.Context, userID, query string, limit int) ([]*models.File, error) {
	if limit <= 0 || limit > store.MaxSearchLimit {
		limit = store.MaxSearchLimit
	}
	key := cache.KeySearch(userID, query, limit)
	var cached []*models.File
	if e.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}
	files, err := e.store.SearchFiles(ctx, userID, query, limit)
	if err != nil {
		return nil, err
	}
	e.cache.SetJSON(ctx, key, files, cache.TTLSearch)
	return files, nil
}

// Stats returns the user's aggregate counters, cache first.
func (e *Engine) Stats(ctx context.Context, userID string) (*store.Stats, error) {
	key := cache.KeyStats(userID)
	var cached store.Stats
	if e.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}
	stats, err := e.store.GetStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	e.cache.SetJSON(ctx, key, stats, cache.TTLStats)
	return stats, nil
}

// StorageUsage reports used bytes and the effective limit (zero means
// unlimited).
func (e *Engine) StorageUsage(ctx context.Context, userID string) (used, limit int64, err error) {
	used, err = e.storageUsed(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	limit = user.StorageLimitBytes
	if limit == 0 && e.cfg != nil {
		limit = e.cfg.Storage.StorageLimit.Int64()
	}
	return used, limit, nil
}

// storageUsed sums the user's live file sizes, cache first.
func (e *Engine) storageUsed(ctx context.Context, userID string) (int64, error) {
	key := cache.KeyStorage(userID)
	var used int64
	if e.cache.GetJSON(ctx, key, &used) {
		return used, nil
	}
	used, err := e.store.StorageUsed(ctx, userID)
	if err != nil {
		return 0, err
	}
	e.cache.SetJSON(ctx, key, used, cache.TTLStorage)
	return used, nil
}
