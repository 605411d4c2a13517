// Package share manages public share tokens: minting, revocation, and
// public resolution of a token to its bound file set.
package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/skyvault-io/skyvault/internal/store"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

// Service implements the share-token lifecycle on top of the metadata
// store. The shared flag on file rows is owned by the tree engine; this
// service only manages links and junctions.
type Service struct {
	store *store.Store
}

// NewService wraps a store.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// MintOrReuse binds the files to a share link. If any of them already
// belongs to a link owned by the user, that link absorbs the rest;
// otherwise a fresh link with a fresh token is created. Returns a map of
// file id to the token now covering it.
func (s *Service) MintOrReuse(ctx context.Context, userID string, fileIDs []string, expiresAt *time.Time) (map[string]string, error) {
	if len(fileIDs) == 0 {
		return map[string]string{}, nil
	}
	if _, err := s.store.GetFiles(ctx, userID, fileIDs); err != nil {
		return nil, err
	}

	var token string
	err := s.store.WithTx(ctx, func(tx *gorm.DB) error {
		link, err := store.ShareLinkForFiles(tx, userID, fileIDs)
		if err != nil {
			if !errors.Is(err, models.ErrNotFound) {
				return err
			}
			link, err = store.CreateShareLink(tx, userID, expiresAt)
			if err != nil {
				return fmt.Errorf("create share link: %w", err)
			}
		}
		token = link.Token
		return store.BindShareFiles(tx, link.ID, fileIDs)
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(fileIDs))
	for _, id := range fileIDs {
		out[id] = token
	}
	return out, nil
}

// Revoke removes the files from whatever links cover them. A link whose
// last junction is removed disappears with it.
func (s *Service) Revoke(ctx context.Context, userID string, fileIDs []string) error {
	if len(fileIDs) == 0 {
		return nil
	}
	return s.store.WithTx(ctx, func(tx *gorm.DB) error {
		return store.UnbindShareFiles(tx, userID, fileIDs)
	})
}

// Resolve validates a public token and returns the live files bound to it.
// Unknown, malformed and expired tokens all fail with ErrNotFound so the
// public surface cannot distinguish them.
func (s *Service) Resolve(ctx context.Context, token string) ([]*models.File, error) {
	if !models.ValidToken(token) {
		return nil, models.ErrNotFound
	}
	link, err := s.store.GetShareLinkByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if link.Expired(time.Now()) {
		return nil, models.ErrNotFound
	}
	return s.store.ShareLinkFiles(ctx, link.ID)
}
