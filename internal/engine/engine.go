// Package engine implements the tree mutations and read paths of the
// storage core. Every mutation keeps three stores coherent: the metadata
// database (source of truth), the blob or custom-drive bytes, and the
// redis cache. Writes commit the database first, then clean the cache,
// then emit audit and change events; readers may briefly observe stale
// listings but always converge.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/skyvault-io/skyvault/internal/blob"
	"github.com/skyvault-io/skyvault/internal/cache"
	"github.com/skyvault-io/skyvault/internal/cryptostream"
	"github.com/skyvault-io/skyvault/internal/events"
	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/store"
	"github.com/skyvault-io/skyvault/internal/store/models"
	"github.com/skyvault-io/skyvault/pkg/config"
)

// DriveAgent performs filesystem operations for custom-drive users. Every
// path is absolute and confined to the given root; implementations
// serialise concurrent calls on the same path.
type DriveAgent interface {
	Mkdir(ctx context.Context, root, path string) error
	WriteFile(ctx context.Context, root, path string, r io.Reader) (int64, error)
	Rename(ctx context.Context, root, oldPath, newPath string) error
	RemoveFile(ctx context.Context, root, path string) error
	RemoveDir(ctx context.Context, root, path string) error
	Exists(ctx context.Context, root, path string) (bool, error)
	CopyFile(ctx context.Context, root, src, dst string) error
	Open(ctx context.Context, root, path string) (io.ReadCloser, error)
}

// Engine wires the stores together and owns all tree mutations.
type Engine struct {
	store    *store.Store
	blobs    blob.Store
	cache    *cache.Cache
	inval    *cache.Invalidator
	cipher   *cryptostream.Cipher // nil means bytes are stored as-is (s3)
	recorder events.Recorder
	broker   *events.Broker
	drive    DriveAgent // nil when the custom drive feature is off
	cfg      *config.Config

	zipMu    sync.Mutex
	zipLocks map[string]*sync.Mutex
}

// Options carries the engine's collaborators. Cache, recorder, broker and
// drive may be nil; the engine degrades feature by feature.
type Options struct {
	Store    *store.Store
	Blobs    blob.Store
	Cache    *cache.Cache
	Cipher   *cryptostream.Cipher
	Recorder events.Recorder
	Broker   *events.Broker
	Drive    DriveAgent
	Config   *config.Config
}

// New assembles an engine.
func New(opts Options) *Engine {
	return &Engine{
		store:    opts.Store,
		blobs:    opts.Blobs,
		cache:    opts.Cache,
		inval:    cache.NewInvalidator(opts.Cache),
		cipher:   opts.Cipher,
		recorder: opts.Recorder,
		broker:   opts.Broker,
		drive:    opts.Drive,
		cfg:      opts.Config,
		zipLocks: make(map[string]*sync.Mutex),
	}
}

// Store exposes the metadata store for collaborators that need read-only
// access (jobs, api).
func (e *Engine) Store() *store.Store {
	return e.store
}

// driveSettings is the cached per-user custom drive configuration.
type driveSettings struct {
	Enabled bool     `json:"enabled"`
	Root    string   `json:"root"`
	Ignore  []string `json:"ignore"`
}

// driveFor resolves a user's custom drive settings, cache first. The
// feature counts as enabled only when an agent is wired and the user has
// a configured root.
func (e *Engine) driveFor(ctx context.Context, userID string) (*driveSettings, error) {
	key := cache.KeyCustomDrive(userID)
	var ds driveSettings
	if e.cache.GetJSON(ctx, key, &ds) {
		if e.drive == nil {
			ds.Enabled = false
		}
		return &ds, nil
	}

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ds = driveSettings{
		Enabled: user.CustomDriveEnabled && user.CustomDrivePath != nil && *user.CustomDrivePath != "",
		Ignore:  user.IgnorePatterns(),
	}
	if user.CustomDrivePath != nil {
		ds.Root = *user.CustomDrivePath
	}
	e.cache.SetJSON(ctx, key, &ds, cache.TTLCustomDrive)

	if e.drive == nil {
		ds.Enabled = false
	}
	return &ds, nil
}

// validateParent checks that a non-nil parent id names a live folder owned
// by the user. Returns the parent row, or nil for root.
func (e *Engine) validateParent(ctx context.Context, userID string, parentID *string) (*models.File, error) {
	if parentID == nil || *parentID == "" {
		return nil, nil
	}
	parent, err := e.store.GetFile(ctx, *parentID, userID)
	if err != nil {
		return nil, err
	}
	if !parent.IsFolder() || parent.InTrash() {
		return nil, fmt.Errorf("%w: parent is not a live folder", models.ErrNotFound)
	}
	return parent, nil
}

// checkQuota fails with ErrQuotaExceeded when addBytes would push the user
// over their limit. Custom-drive users are exempt; their limit is the
// underlying filesystem.
func (e *Engine) checkQuota(ctx context.Context, user *models.User, addBytes int64) error {
	limit := user.StorageLimitBytes
	if limit == 0 && e.cfg != nil {
		limit = e.cfg.Storage.StorageLimit.Int64()
	}
	if limit <= 0 {
		return nil
	}
	used, err := e.storageUsed(ctx, user.ID)
	if err != nil {
		return err
	}
	if used+addBytes > limit {
		return fmt.Errorf("%w: %d + %d exceeds limit %d", models.ErrQuotaExceeded, used, addBytes, limit)
	}
	return nil
}

// audit emits one audit event after a mutation. Emission never fails the
// request; the commit already happened.
func (e *Engine) audit(ctx context.Context, userID, action, resourceType, resourceID, status string, opErr error, meta map[string]any) {
	if e.recorder == nil {
		return
	}
	ev := events.Event{
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Status:       status,
		Metadata:     meta,
	}
	if lc := logger.FromContext(ctx); lc != nil {
		ev.RequestID = lc.RequestID
		ev.IPAddress = lc.ClientIP
		ev.UserAgent = lc.UserAgent
		ev.ProcessingMS = int64(lc.DurationMs())
	}
	if opErr != nil {
		ev.ErrorMessage = opErr.Error()
	}
	e.recorder.Record(ctx, ev)
}

// publish fans a change notification out to the user's SSE subscribers.
func (e *Engine) publish(userID string, kind events.ChangeKind, id string, parentID *string) {
	if e.broker == nil {
		return
	}
	e.broker.Publish(events.Change{UserID: userID, Kind: kind, ID: id, ParentID: parentID})
}

// parentsOf collects the distinct parents of a row set, for listing
// invalidation.
func parentsOf(rows []*models.File) []*string {
	var out []*string
	seen := map[string]bool{}
	for _, r := range rows {
		key := ""
		if r.ParentID != nil {
			key = *r.ParentID
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r.ParentID)
	}
	return out
}

// folderIDs filters a row set down to its folder ids.
func folderIDs(rows []*models.File) []string {
	var out []string
	for _, r := range rows {
		if r.IsFolder() {
			out = append(out, r.ID)
		}
	}
	return out
}

// rowIDs extracts the ids of a row set.
func rowIDs(rows []*models.File) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

// Get fetches one owned file row, cache first.
func (e *Engine) Get(ctx context.Context, userID, id string) (*models.File, error) {
	key := cache.KeyFile(id, userID)
	var f models.File
	if e.cache.GetJSON(ctx, key, &f) {
		return &f, nil
	}
	row, err := e.store.GetFile(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	e.cache.SetJSON(ctx, key, row, cache.TTLFile)
	return row, nil
}

// putBlob streams plaintext into the blob store under key, encrypting in
// flight for the local driver. No plaintext ever lands on disk.
func (e *Engine) putBlob(ctx context.Context, key string, r io.Reader) error {
	if e.cipher == nil {
		return e.blobs.Put(ctx, key, r)
	}
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(e.cipher.Encrypt(pw, r))
	}()
	if err := e.blobs.Put(ctx, key, pr); err != nil {
		pr.CloseWithError(err)
		return err
	}
	return nil
}

// openBlob returns a plaintext stream of the blob under key.
func (e *Engine) openBlob(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := e.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if e.cipher == nil {
		return rc, nil
	}
	pr, pw := io.Pipe()
	go func() {
		err := e.cipher.Decrypt(pw, rc)
		rc.Close()
		pw.CloseWithError(err)
	}()
	return pr, nil
}

// openFileStream returns a plaintext stream of a file row's bytes,
// whatever their location.
func (e *Engine) openFileStream(ctx context.Context, row *models.File) (io.ReadCloser, error) {
	if row.IsFolder() {
		return nil, fmt.Errorf("%w: folder has no byte stream", models.ErrInvalidPath)
	}
	if row.HasAbsolutePath() {
		f, err := os.Open(*row.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, models.ErrNotFound
			}
			return nil, err
		}
		return f, nil
	}
	key := row.StorageKey()
	if key == "" {
		return nil, fmt.Errorf("%w: file row has no storage location", models.ErrInvalidPath)
	}
	return e.openBlob(ctx, key)
}

// storageKeyFor builds the blob key for a fresh file id, keeping the
// original extension so stored objects stay recognisable.
func storageKeyFor(id, name string) string {
	return id + filepath.Ext(name)
}

// detectMime guesses a mime type from the filename extension.
func detectMime(name string) *string {
	ext := filepath.Ext(name)
	if ext == "" {
		return nil
	}
	if t := mimeByExtension(ext); t != "" {
		return &t
	}
	return nil
}

// touch returns the current UTC time, the single clock used for modified
// and deleted_at stamps.
func touch() time.Time {
	return time.Now().UTC()
}
