package store

import (
	"context"
	"strings"

	"github.com/skyvault-io/skyvault/internal/store/models"
)

// MaxSearchLimit caps fuzzy search result sets.
const MaxSearchLimit = 500

// trigramSearchSQL combines prefix match with trigram similarity. Ordering:
// exact match first, then prefix matches, then by descending similarity,
// then by recency.
const trigramSearchSQL = `
SELECT * FROM files
WHERE user_id = ? AND deleted_at IS NULL
  AND (lower(name) LIKE ? ESCAPE '\' OR similarity(lower(name), ?) > 0.15)
ORDER BY
  (lower(name) = ?) DESC,
  (lower(name) LIKE ? ESCAPE '\') DESC,
  similarity(lower(name), ?) DESC,
  modified DESC
LIMIT ?`

// likeSearchSQL is the SQLite fallback: substring match ordered by exact,
// prefix, then recency. No similarity function is available, which is fine
// at single-node scale.
const likeSearchSQL = `
SELECT * FROM files
WHERE user_id = ? AND deleted_at IS NULL AND lower(name) LIKE ? ESCAPE '\'
ORDER BY
  (lower(name) = ?) DESC,
  (lower(name) LIKE ? ESCAPE '\') DESC,
  modified DESC
LIMIT ?`

// SearchFiles performs the fuzzy name search. Queries of one or two
// characters use prefix matching only; longer queries add trigram
// similarity on postgres.
func (s *Store) SearchFiles(ctx context.Context, userID, query string, limit int) ([]*models.File, error) {
	if limit <= 0 || limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	escaped := escapeLike(q)
	prefix := escaped + "%"

	var files []*models.File
	var err error
	switch {
	case len([]rune(q)) <= 2:
		err = s.db.WithContext(ctx).
			Where(`user_id = ? AND deleted_at IS NULL AND lower(name) LIKE ? ESCAPE '\'`, userID, prefix).
			Order("modified DESC").
			Limit(limit).
			Find(&files).Error
	case s.postgres:
		err = s.db.WithContext(ctx).
			Raw(trigramSearchSQL, userID, prefix, q, q, prefix, q, limit).
			Scan(&files).Error
	default:
		err = s.db.WithContext(ctx).
			Raw(likeSearchSQL, userID, "%"+escaped+"%", q, prefix, limit).
			Scan(&files).Error
	}
	if err != nil {
		return nil, convertError(err)
	}
	return files, nil
}

// escapeLike escapes LIKE metacharacters in user input. Every predicate
// consuming its output must declare ESCAPE '\'; sqlite has no default
// escape character.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
