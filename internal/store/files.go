package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/skyvault-io/skyvault/internal/store/models"
)

// Sort columns accepted by listing queries. Anything else falls back to
// the default so request parameters can never reach the ORDER BY clause
// verbatim.
var sortColumns = map[string]string{
	"name":       "name",
	"size":       "size",
	"modified":   "modified",
	"deleted_at": "deleted_at",
	"deletedAt":  "deleted_at",
}

// OrderClause builds a safe ORDER BY from whitelisted inputs. Default is
// modified DESC.
func OrderClause(sortBy, order string) string {
	col, ok := sortColumns[sortBy]
	if !ok {
		col = "modified"
	}
	dir := "DESC"
	if order == "asc" || order == "ASC" {
		dir = "ASC"
	}
	return col + " " + dir
}

// InsertFile inserts a file row. Usable standalone or inside a transaction.
func InsertFile(db *gorm.DB, f *models.File) error {
	if f.ID == "" {
		f.ID = models.NewID()
	}
	if f.Modified.IsZero() {
		f.Modified = time.Now().UTC()
	}
	return convertError(db.Create(f).Error)
}

// UpdateFileFields updates the given columns on one owned row.
func UpdateFileFields(db *gorm.DB, id, userID string, fields map[string]any) error {
	res := db.Model(&models.File{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(fields)
	if res.Error != nil {
		return convertError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteFileRows removes rows permanently, cascading share junctions so
// no link ever points at a missing row.
func DeleteFileRows(db *gorm.DB, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := db.Where("file_id IN ?", ids).Delete(&models.ShareLinkFile{}).Error; err != nil {
		return convertError(err)
	}
	return convertError(db.Where("user_id = ? AND id IN ?", userID, ids).Delete(&models.File{}).Error)
}

// GetFile fetches one owned row, trashed or not.
func (s *Store) GetFile(ctx context.Context, id, userID string) (*models.File, error) {
	var f models.File
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&f).Error
	if err != nil {
		return nil, convertError(err)
	}
	return &f, nil
}

// GetFiles fetches a set of owned rows. Missing ids fail with ErrNotFound
// so partial mutations never start.
func (s *Store) GetFiles(ctx context.Context, userID string, ids []string) ([]*models.File, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var files []*models.File
	err := s.db.WithContext(ctx).Where("user_id = ? AND id IN ?", userID, ids).Find(&files).Error
	if err != nil {
		return nil, convertError(err)
	}
	if len(files) != len(dedupe(ids)) {
		return nil, fmt.Errorf("%w: one or more files missing", models.ErrNotFound)
	}
	return files, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ListChildren lists the non-deleted direct children of a parent (nil
// means root) with a whitelisted sort.
func (s *Store) ListChildren(ctx context.Context, userID string, parentID *string, sortBy, order string) ([]*models.File, error) {
	var files []*models.File
	q := s.db.WithContext(ctx).Where("user_id = ? AND deleted_at IS NULL", userID)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}
	if err := q.Order(OrderClause(sortBy, order)).Find(&files).Error; err != nil {
		return nil, convertError(err)
	}
	return files, nil
}

// ListTrash lists all trashed rows for a user.
func (s *Store) ListTrash(ctx context.Context, userID, sortBy, order string) ([]*models.File, error) {
	var files []*models.File
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND deleted_at IS NOT NULL", userID).
		Order(OrderClause(sortBy, order)).
		Find(&files).Error
	if err != nil {
		return nil, convertError(err)
	}
	return files, nil
}

// ListFlagged lists non-deleted rows with the given flag column ("starred"
// or "shared") set.
func (s *Store) ListFlagged(ctx context.Context, userID, flag, sortBy, order string) ([]*models.File, error) {
	if flag != "starred" && flag != "shared" {
		return nil, fmt.Errorf("unknown flag column %q", flag)
	}
	var files []*models.File
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND deleted_at IS NULL AND "+flag+" = ?", userID, true).
		Order(OrderClause(sortBy, order)).
		Find(&files).Error
	if err != nil {
		return nil, convertError(err)
	}
	return files, nil
}

// descendantsSQL is the transitive closure over parent_id. The non-deleted
// variant prunes trashed rows at every level so a restored subtree cannot
// leak through a deleted intermediate.
const descendantsSQL = `
WITH RECURSIVE tree AS (
    SELECT * FROM files WHERE id IN ? AND user_id = ?
    UNION ALL
    SELECT f.* FROM files f JOIN tree t ON f.parent_id = t.id
    WHERE f.user_id = ?
)
SELECT * FROM tree`

const descendantsLiveSQL = `
WITH RECURSIVE tree AS (
    SELECT * FROM files WHERE id IN ? AND user_id = ? AND deleted_at IS NULL
    UNION ALL
    SELECT f.* FROM files f JOIN tree t ON f.parent_id = t.id
    WHERE f.user_id = ? AND f.deleted_at IS NULL
)
SELECT * FROM tree`

// Descendants returns the selected roots plus every descendant row,
// optionally including trashed rows. Positional binds throughout.
func (s *Store) Descendants(ctx context.Context, userID string, rootIDs []string, includeDeleted bool) ([]*models.File, error) {
	return DescendantsTx(s.db.WithContext(ctx), userID, rootIDs, includeDeleted)
}

// DescendantsTx is Descendants against an explicit transaction handle.
func DescendantsTx(db *gorm.DB, userID string, rootIDs []string, includeDeleted bool) ([]*models.File, error) {
	if len(rootIDs) == 0 {
		return nil, nil
	}
	q := descendantsLiveSQL
	if includeDeleted {
		q = descendantsSQL
	}
	var files []*models.File
	if err := db.Raw(q, rootIDs, userID, userID).Scan(&files).Error; err != nil {
		return nil, convertError(err)
	}
	return files, nil
}

// folderSizeSQL sums non-deleted descendant file sizes.
const folderSizeSQL = `
WITH RECURSIVE tree AS (
    SELECT id FROM files WHERE id = ? AND user_id = ? AND deleted_at IS NULL
    UNION ALL
    SELECT f.id FROM files f JOIN tree t ON f.parent_id = t.id
    WHERE f.user_id = ? AND f.deleted_at IS NULL
)
SELECT COALESCE(SUM(size), 0) FROM files
WHERE id IN (SELECT id FROM tree) AND type = 'file' AND deleted_at IS NULL`

// FolderSize computes the byte sum of a folder's live descendants. Never
// stored; the engine caches the result.
func (s *Store) FolderSize(ctx context.Context, userID, folderID string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Raw(folderSizeSQL, folderID, userID, userID).Scan(&total).Error
	if err != nil {
		return 0, convertError(err)
	}
	return total, nil
}

// SiblingNames returns the set of live names under a parent, used by the
// " (N)" duplicate suffix scheme.
func SiblingNames(db *gorm.DB, userID string, parentID *string) (map[string]struct{}, error) {
	var names []string
	q := db.Model(&models.File{}).Where("user_id = ? AND deleted_at IS NULL", userID)
	if parentID == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parentID)
	}
	if err := q.Pluck("name", &names).Error; err != nil {
		return nil, convertError(err)
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set, nil
}

// MarkDeleted sets deleted_at on a precomputed id set in one statement.
func MarkDeleted(db *gorm.DB, userID string, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return convertError(db.Model(&models.File{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Update("deleted_at", at).Error)
}

// ListExpiredTrash returns all rows trashed before the cutoff, across all
// users. Used by the trash expiry sweep.
func (s *Store) ListExpiredTrash(ctx context.Context, cutoff time.Time) ([]*models.File, error) {
	var files []*models.File
	err := s.db.WithContext(ctx).
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff).
		Find(&files).Error
	if err != nil {
		return nil, convertError(err)
	}
	return files, nil
}

// WalkStorageKeyRows streams file rows carrying a relative storage key in
// batches, across all users. Custom-drive (absolute) rows never appear
// here.
func (s *Store) WalkStorageKeyRows(ctx context.Context, batchSize int, fn func(rows []*models.File) error) error {
	var batch []*models.File
	res := s.db.WithContext(ctx).
		Where("type = ? AND path IS NOT NULL AND path NOT LIKE '/%'", models.TypeFile).
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			return fn(batch)
		})
	return convertError(res.Error)
}

// ListAbsolutePathRows returns a user's custom-drive rows (absolute path),
// trashed rows included, keyed for reconciliation.
func (s *Store) ListAbsolutePathRows(ctx context.Context, userID string) ([]*models.File, error) {
	var files []*models.File
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND path LIKE '/%'", userID).
		Find(&files).Error
	if err != nil {
		return nil, convertError(err)
	}
	return files, nil
}

// GetFileByAbsolutePath fetches a custom-drive row by its literal path.
func (s *Store) GetFileByAbsolutePath(ctx context.Context, userID, absPath string) (*models.File, error) {
	var f models.File
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND path = ?", userID, absPath).
		First(&f).Error
	if err != nil {
		return nil, convertError(err)
	}
	return &f, nil
}
