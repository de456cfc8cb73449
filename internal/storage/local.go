package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var ErrOutsideRoot = errors.New("path escapes storage root")

// LocalStorage keeps files on the local filesystem under a root directory
// and exposes them below a URL prefix (e.g. "/uploads").
type LocalStorage struct {
	root      string
	urlPrefix string
}

func NewLocalStorage(root, urlPrefix string) (*LocalStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}

	err = os.MkdirAll(abs, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	return &LocalStorage{
		root:      abs,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
	}, nil
}

func (s *LocalStorage) Root() string {
	return s.root
}

// URLPrefix is the public path files are served under, without a trailing slash.
func (s *LocalStorage) URLPrefix() string {
	return s.urlPrefix
}

// Path resolves a storage key to a filesystem path inside the root.
func (s *LocalStorage) Path(key string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(key))
	if clean == "/" {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, key)
	}

	full := filepath.Join(s.root, filepath.FromSlash(clean))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, key)
	}
	return full, nil
}

// EnsureDir creates dir below the root. Safe to call concurrently.
func (s *LocalStorage) EnsureDir(dir string) (string, error) {
	full, err := s.Path(dir)
	if err != nil {
		return "", err
	}
	err = os.MkdirAll(full, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	return full, nil
}

// Save writes to a temp file next to the target and renames it into place,
// so a failed copy never leaves a partial file under the final name.
func (s *LocalStorage) Save(ctx context.Context, key string, r io.Reader) error {
	full, err := s.Path(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(full)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	_, err = io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	err = os.Chmod(tmpName, 0644)
	if err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}

	err = os.Rename(tmpName, full)
	if err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	return nil
}

func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	full, err := s.Path(key)
	if err != nil {
		return err
	}

	info, err := os.Stat(full)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", key)
	}

	return os.Remove(full)
}

func (s *LocalStorage) URL(key string) string {
	return s.urlPrefix + "/" + strings.TrimPrefix(filepath.ToSlash(key), "/")
}

// KeyFromURL maps a public URL back to its storage key. ok is false for
// URLs that do not point into this storage.
func (s *LocalStorage) KeyFromURL(url string) (key string, ok bool) {
	rest, found := strings.CutPrefix(url, s.urlPrefix+"/")
	if !found || rest == "" {
		return "", false
	}
	return rest, true
}

// CleanupEmptyDirs removes empty first-level directories under the root.
// Directories that fill up or disappear between the check and the removal
// are skipped. Returns the number of directories removed.
func (s *LocalStorage) CleanupEmptyDirs() (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("failed to read storage root: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(s.root, entry.Name())
		children, err := os.ReadDir(dir)
		if err != nil || len(children) > 0 {
			continue
		}

		err = os.Remove(dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Debug("skipping upload folder", "dir", dir, "error", err)
			}
			continue
		}
		removed++
	}

	return removed, nil
}

// contextReader stops a copy once ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	err := cr.ctx.Err()
	if err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
