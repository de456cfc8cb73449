package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/qabox/qabox/internal/storage"
	"github.com/qabox/qabox/internal/validation"
)

var (
	ErrPayloadTooLarge = errors.New("payload too large")
)

const weekBucketLayout = "2006-01-02"

// WeekBucket names the folder for uploads written at t: the date of the
// Monday on or before t's calendar day.
func WeekBucket(t time.Time) string {
	// time.Weekday: Sunday=0 ... Saturday=6; shift so Monday=0
	offset := (int(t.Weekday()) + 6) % 7
	monday := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, t.Location())
	return monday.Format(weekBucketLayout)
}

// Allocation is where a new upload goes.
type Allocation struct {
	Key  string // "{week_bucket}/{name}", relative to the upload root
	Path string // Filesystem path to write to
	URL  string // Stable public URL
}

type UploadService struct {
	storage *storage.LocalStorage
	maxSize int64
	now     func() time.Time
}

func NewUploadService(storage *storage.LocalStorage, maxSize int64) *UploadService {
	return &UploadService{
		storage: storage,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// WithClock replaces the time source used for week buckets.
func (s *UploadService) WithClock(now func() time.Time) *UploadService {
	s.now = now
	return s
}

// MaxSize is the cap applied to non-privileged uploads.
func (s *UploadService) MaxSize() int64 {
	return s.maxSize
}

// Allocate picks a collision-free name for originalName inside the current
// week bucket and makes sure the bucket folder exists.
func (s *UploadService) Allocate(originalName string) (*Allocation, error) {
	bucket := WeekBucket(s.now())
	name := uuid.New().String() + "." + validation.UploadExtension(originalName)
	key := path.Join(bucket, name)

	_, err := s.storage.EnsureDir(bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare upload folder: %w", err)
	}

	fullPath, err := s.storage.Path(key)
	if err != nil {
		return nil, err
	}

	return &Allocation{
		Key:  key,
		Path: fullPath,
		URL:  s.storage.URL(key),
	}, nil
}

// Upload stores a file and returns its public URL. Unless privileged, size
// is checked against the cap before anything is allocated or written.
func (s *UploadService) Upload(ctx context.Context, originalName string, size int64, r io.Reader, privileged bool) (string, error) {
	capped := !privileged && s.maxSize > 0
	if capped {
		err := validation.ValidateUploadSize(size, s.maxSize)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrPayloadTooLarge, err)
		}
		// Never trust the declared size alone
		r = io.LimitReader(r, s.maxSize+1)
	}

	alloc, err := s.Allocate(originalName)
	if err != nil {
		return "", err
	}

	counter := &countingReader{r: r}
	err = s.storage.Save(ctx, alloc.Key, counter)
	if err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}

	if capped && counter.n > s.maxSize {
		s.removeQuietly(alloc.Key)
		return "", fmt.Errorf("%w: body exceeded declared size", ErrPayloadTooLarge)
	}

	slog.Info("file uploaded", "url", alloc.URL, "size", counter.n, "privileged", privileged)
	return alloc.URL, nil
}

// DeleteByURLs removes the files behind upload URLs. Failures are logged and
// skipped; URLs outside the upload area are ignored. Returns how many files
// were deleted.
func (s *UploadService) DeleteByURLs(ctx context.Context, urls []string) int {
	deleted := 0
	for _, url := range urls {
		key, ok := s.storage.KeyFromURL(url)
		if !ok {
			continue
		}

		err := s.storage.Delete(ctx, key)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("upload already gone", "url", url)
			} else {
				slog.Warn("failed to delete upload", "error", err, "url", url)
			}
			continue
		}
		deleted++
	}
	return deleted
}

// CleanupEmptyFolders removes week buckets left empty by deletions.
func (s *UploadService) CleanupEmptyFolders() (int, error) {
	removed, err := s.storage.CleanupEmptyDirs()
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		slog.Info("removed empty upload folders", "count", removed)
	}
	return removed, nil
}

func (s *UploadService) removeQuietly(key string) {
	err := s.storage.Delete(context.Background(), key)
	if err != nil {
		slog.Error("failed to remove rejected upload", "error", err, "path", filepath.ToSlash(key))
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
