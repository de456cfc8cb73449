package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/qabox/qabox/internal/model"
	"github.com/qabox/qabox/internal/storage"
)

const (
	namePrefix      = "qabox_backup_"
	nameSuffix      = ".db"
	timestampLayout = "20060102_150405"
)

var ErrDatabaseMissing = errors.New("database file not found")

// Config describes where snapshots come from and where they go.
type Config struct {
	DBPath   string
	Dir      string
	MaxCount int
	Interval time.Duration

	// Mirror receives a copy of every new snapshot. Optional.
	Mirror storage.Storage
}

// Manager takes file-level snapshots of the SQLite database and keeps the
// newest MaxCount of them.
type Manager struct {
	dbPath   string
	dir      string
	maxCount int
	interval time.Duration
	mirror   storage.Storage
	now      func() time.Time

	mu      sync.Mutex
	lastSig string
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("backup: database path is required")
	}
	if cfg.Dir == "" {
		return nil, errors.New("backup: directory is required")
	}

	err := os.MkdirAll(cfg.Dir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	return &Manager{
		dbPath:   cfg.DBPath,
		dir:      cfg.Dir,
		maxCount: cfg.MaxCount,
		interval: cfg.Interval,
		mirror:   cfg.Mirror,
		now:      time.Now,
	}, nil
}

// WithClock replaces the time source used for snapshot names and mtimes.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Snapshot copies the database into the backup directory. Unless forced, it
// is a no-op (returning "") when the database has not changed since the last
// snapshot. Returns the path of the new snapshot.
func (m *Manager) Snapshot(ctx context.Context, force bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := os.Stat(m.dbPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("skipping backup: database file not found", "path", m.dbPath)
			return "", fmt.Errorf("%w: %s", ErrDatabaseMissing, m.dbPath)
		}
		return "", fmt.Errorf("failed to stat database: %w", err)
	}

	sig := signature(info)
	if !force && sig == m.lastSig {
		slog.Debug("skipping backup: database unchanged")
		return "", nil
	}

	taken := m.now()
	target, err := m.copyDatabase(ctx, taken)
	if err != nil {
		slog.Error("backup failed", "error", err)
		return "", err
	}

	m.lastSig = sig
	slog.Info("backup created", "path", target, "size", info.Size())

	m.mirrorSnapshot(ctx, target)

	err = m.prune(ctx)
	if err != nil {
		slog.Error("failed to prune old backups", "error", err)
	}

	return target, nil
}

// Run snapshots every interval until ctx is cancelled. A non-positive
// interval disables the loop.
func (m *Manager) Run(ctx context.Context) {
	if m.interval <= 0 {
		slog.Info("scheduled backup disabled", "interval", m.interval)
		return
	}

	slog.Info("scheduled backup started", "interval", m.interval, "dir", m.dir)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduled backup stopped")
			return
		case <-ticker.C:
			// Failures are logged inside; the next tick retries
			_, _ = m.Snapshot(ctx, false)
		}
	}
}

// List returns the retained snapshots, newest first.
func (m *Manager) List() ([]model.Backup, error) {
	entries, err := m.snapshots()
	if err != nil {
		return nil, err
	}

	backups := make([]model.Backup, 0, len(entries))
	for _, e := range entries {
		backups = append(backups, model.Backup{
			Name:      e.name,
			Size:      e.size,
			CreatedAt: e.modTime,
		})
	}
	return backups, nil
}

func (m *Manager) copyDatabase(ctx context.Context, taken time.Time) (string, error) {
	target := m.targetPath(taken)
	tmpPath := target + ".tmp"

	src, err := os.Open(m.dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to open database: %w", err)
	}
	defer src.Close()

	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	defer func() {
		// No-op after a successful rename
		_ = os.Remove(tmpPath)
	}()

	_, err = io.Copy(tmp, readerFunc(func(p []byte) (int, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return src.Read(p)
	}))
	if err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to copy database: %w", err)
	}

	err = tmp.Sync()
	if err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to sync snapshot: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		return "", fmt.Errorf("failed to close snapshot: %w", err)
	}

	err = os.Rename(tmpPath, target)
	if err != nil {
		return "", fmt.Errorf("failed to move snapshot into place: %w", err)
	}

	err = os.Chtimes(target, taken, taken)
	if err != nil {
		slog.Warn("failed to set snapshot time", "error", err, "path", target)
	}

	return target, nil
}

// targetPath names a snapshot after the time it was taken, adding a counter
// when several snapshots land in the same second.
func (m *Manager) targetPath(taken time.Time) string {
	base := namePrefix + taken.Format(timestampLayout)
	target := filepath.Join(m.dir, base+nameSuffix)
	for i := 1; ; i++ {
		_, err := os.Stat(target)
		if errors.Is(err, fs.ErrNotExist) {
			return target
		}
		target = filepath.Join(m.dir, fmt.Sprintf("%s_%d%s", base, i, nameSuffix))
	}
}

func (m *Manager) mirrorSnapshot(ctx context.Context, path string) {
	if m.mirror == nil {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		slog.Error("failed to open snapshot for mirroring", "error", err, "path", path)
		return
	}
	defer f.Close()

	name := filepath.Base(path)
	err = m.mirror.Save(ctx, name, f)
	if err != nil {
		slog.Error("failed to mirror backup", "error", err, "name", name)
		return
	}
	slog.Info("backup mirrored", "name", name, "url", m.mirror.URL(name))
}

// prune deletes everything past the newest maxCount snapshots, together
// with their mirrored copies. A non-positive maxCount keeps everything.
func (m *Manager) prune(ctx context.Context) error {
	if m.maxCount <= 0 {
		return nil
	}

	entries, err := m.snapshots()
	if err != nil {
		return err
	}
	if len(entries) <= m.maxCount {
		return nil
	}

	for _, e := range entries[m.maxCount:] {
		err := os.Remove(filepath.Join(m.dir, e.name))
		if err != nil {
			slog.Error("failed to delete old backup", "error", err, "name", e.name)
			continue
		}
		slog.Info("deleted old backup", "name", e.name)

		if m.mirror != nil {
			err = m.mirror.Delete(ctx, e.name)
			if err != nil {
				slog.Warn("failed to delete mirrored backup", "error", err, "name", e.name)
			}
		}
	}
	return nil
}

type snapshotEntry struct {
	name    string
	size    int64
	modTime time.Time
}

// snapshots lists finished snapshots newest first. Temp files are ignored.
func (m *Manager) snapshots() ([]snapshotEntry, error) {
	dirEntries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var entries []snapshotEntry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, namePrefix) || !strings.HasSuffix(name, nameSuffix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed while listing
			continue
		}
		entries = append(entries, snapshotEntry{
			name:    name,
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].modTime.Equal(entries[j].modTime) {
			return entries[i].name > entries[j].name
		}
		return entries[i].modTime.After(entries[j].modTime)
	})
	return entries, nil
}

func signature(info fs.FileInfo) string {
	return fmt.Sprintf("%d_%d", info.Size(), info.ModTime().UnixNano())
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) {
	return f(p)
}
