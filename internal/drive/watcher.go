package drive

import (
	"context"
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/skyvault-io/skyvault/internal/engine"
	"github.com/skyvault-io/skyvault/internal/logger"
	"github.com/skyvault-io/skyvault/internal/store"
	"github.com/skyvault-io/skyvault/internal/store/models"
)

// Watcher keeps custom-drive trees in step with disk. On start it runs a
// full reconciliation per enabled user, then watches their directories
// and re-reconciles a user after a debounce window of quiet. All changes
// flow through the engine's sync entry points, so cache invalidation,
// audit and SSE behave exactly as for API mutations.
type Watcher struct {
	engine   *engine.Engine
	store    *store.Store
	debounce time.Duration

	fw        *fsnotify.Watcher
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewWatcher builds a watcher; Start arms it.
func NewWatcher(eng *engine.Engine, st *store.Store, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		engine:    eng,
		store:     st,
		debounce:  debounce,
		fw:        fw,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}, nil
}

// Start reconciles every enabled user and begins watching.
func (w *Watcher) Start(ctx context.Context) error {
	users, err := w.store.ListCustomDriveUsers(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		if err := w.reconcileUser(ctx, user); err != nil {
			logger.Error("drive: startup reconciliation failed",
				logger.KeyUserID, user.ID, logger.KeyError, err)
		}
		w.watchTree(*user.CustomDrivePath, user.IgnorePatterns())
	}

	go w.loop(ctx)
	return nil
}

// Stop tears the watcher down and waits for the loop to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
	w.fw.Close()
}

// loop collects filesystem events into a per-user dirty set and flushes
// it after a debounce window of quiet.
func (w *Watcher) loop(ctx context.Context) {
	defer close(w.stoppedCh)

	dirty := make(map[string]struct{})
	var timer *time.Timer
	var timerCh <-chan time.Time

	arm := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerCh = timer.C
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(w.debounce)
	}

	for {
		select {
		case <-w.stopCh:
			return

		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if userID := w.ownerOf(ctx, ev.Name); userID != "" {
				dirty[userID] = struct{}{}
				arm()
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logger.Warn("drive: watch error", logger.KeyError, err)

		case <-timerCh:
			for userID := range dirty {
				delete(dirty, userID)
				user, err := w.store.GetUser(ctx, userID)
				if err != nil || !user.CustomDriveEnabled || user.CustomDrivePath == nil {
					continue
				}
				if err := w.reconcileUser(ctx, user); err != nil {
					logger.Error("drive: reconciliation failed",
						logger.KeyUserID, userID, logger.KeyError, err)
				}
				w.watchTree(*user.CustomDrivePath, user.IgnorePatterns())
			}
		}
	}
}

// ownerOf maps an event path to the user whose drive root contains it.
func (w *Watcher) ownerOf(ctx context.Context, eventPath string) string {
	users, err := w.store.ListCustomDriveUsers(ctx)
	if err != nil {
		logger.Debug("drive: user lookup failed", logger.KeyError, err)
		return ""
	}
	for _, user := range users {
		root := filepath.Clean(*user.CustomDrivePath)
		if eventPath == root || strings.HasPrefix(eventPath, root+string(filepath.Separator)) {
			return user.ID
		}
	}
	return ""
}

// watchTree registers the root and every non-ignored subdirectory.
// fsnotify watches are not recursive, so new directories are picked up on
// each reconciliation.
func (w *Watcher) watchTree(root string, ignore []string) {
	filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if p != root {
			rel, relErr := filepath.Rel(root, p)
			if relErr == nil && Ignored(rel, ignore) {
				return filepath.SkipDir
			}
		}
		if addErr := w.fw.Add(p); addErr != nil {
			logger.Debug("drive: watch add failed", logger.KeyPath, p, logger.KeyError, addErr)
		}
		return nil
	})
}

// diskEntry is one observed filesystem entry during reconciliation.
type diskEntry struct {
	isDir   bool
	size    int64
	modTime time.Time
}

// reconcileUser diffs a user's drive directory against their
// absolute-path rows and applies the minimal set of creates, updates and
// removals. Per-item failures are logged; the diff continues.
func (w *Watcher) reconcileUser(ctx context.Context, user *models.User) error {
	root := filepath.Clean(*user.CustomDrivePath)
	ignore := user.IgnorePatterns()

	disk := make(map[string]diskEntry)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Debug("drive: walk error", logger.KeyPath, p, logger.KeyError, err)
			return nil
		}
		if p == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		if Ignored(rel, ignore) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(p, ".tmp") {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		disk[p] = diskEntry{isDir: d.IsDir(), size: info.Size(), modTime: info.ModTime()}
		return nil
	})
	if err != nil {
		return err
	}

	rows, err := w.store.ListAbsolutePathRows(ctx, user.ID)
	if err != nil {
		return err
	}
	known := make(map[string]*models.File, len(rows))
	for _, row := range rows {
		known[filepath.Clean(*row.Path)] = row
	}

	// Creates parents-first so children can attach to their directory row.
	var created []string
	for p := range disk {
		if _, ok := known[p]; !ok {
			created = append(created, p)
		}
	}
	sort.Slice(created, func(i, j int) bool { return len(created[i]) < len(created[j]) })
	for _, p := range created {
		entry := disk[p]
		if _, err := w.engine.SyncCreate(ctx, user, p, entry.isDir, entry.size, entry.modTime); err != nil {
			logger.Warn("drive: sync create failed", logger.KeyPath, p, logger.KeyError, err)
		}
	}

	for p, row := range known {
		entry, onDisk := disk[p]
		if !onDisk {
			continue
		}
		if row.IsFolder() || entry.isDir {
			continue
		}
		if entry.size != row.Size || entry.modTime.UTC().Sub(row.Modified.UTC()).Abs() > time.Second {
			if err := w.engine.SyncUpdate(ctx, user.ID, *row.Path, entry.size, entry.modTime); err != nil {
				logger.Warn("drive: sync update failed", logger.KeyPath, p, logger.KeyError, err)
			}
		}
	}

	// Removals parents-first; SyncRemove takes descendants with it, so
	// children that were already handled just come back NotFound.
	var removed []string
	for p := range known {
		if _, ok := disk[p]; !ok {
			removed = append(removed, p)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return len(removed[i]) < len(removed[j]) })
	for _, p := range removed {
		row := known[p]
		if err := w.engine.SyncRemove(ctx, user.ID, *row.Path); err != nil && !errors.Is(err, models.ErrNotFound) {
			logger.Warn("drive: sync remove failed", logger.KeyPath, p, logger.KeyError, err)
		}
	}

	return nil
}

// Ignored reports whether a root-relative path matches the user's ignore
// patterns. A pattern matches when any path segment equals it; a pattern
// containing * is a wildcard over one segment.
func Ignored(rel string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	segments := strings.Split(filepath.ToSlash(rel), "/")
	for _, pattern := range patterns {
		if strings.ContainsRune(pattern, '*') {
			for _, seg := range segments {
				if ok, _ := path.Match(pattern, seg); ok {
					return true
				}
			}
			continue
		}
		for _, seg := range segments {
			if seg == pattern {
				return true
			}
		}
	}
	return false
}
