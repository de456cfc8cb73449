package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/qabox/qabox/internal/db"
	"github.com/qabox/qabox/internal/repository"
	"github.com/qabox/qabox/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-with-enough-entropy"

// fakeClock is a settable time source shared by the services under test.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 12, 10, 30, 0, 0, time.UTC)}
}

func newTestCodec(t *testing.T, clock *fakeClock) *TokenCodec {
	t.Helper()

	codec, err := NewTokenCodec(testSecret, "HS256")
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return codec.WithClock(clock.Now)
}

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "qabox.db")
	database, err := db.Init("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	err = db.RunMigrations(context.Background(), database.DB, "sqlite")
	if err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	return database
}

func newTestUploads(t *testing.T, clock *fakeClock, maxSize int64) *UploadService {
	t.Helper()

	local, err := storage.NewLocalStorage(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	return NewUploadService(local, maxSize).WithClock(clock.Now)
}

type questionFixture struct {
	clock     *fakeClock
	codec     *TokenCodec
	repo      repository.QuestionRepository
	uploads   *UploadService
	questions *QuestionService
}

func newQuestionFixture(t *testing.T, notifier Notifier) *questionFixture {
	t.Helper()

	clock := newClock()
	codec := newTestCodec(t, clock)
	repo := repository.NewQuestionRepository(newTestDB(t))
	uploads := newTestUploads(t, clock, 1024)

	return &questionFixture{
		clock:     clock,
		codec:     codec,
		repo:      repo,
		uploads:   uploads,
		questions: NewQuestionService(repo, codec, uploads, notifier, 30*24*time.Hour),
	}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}
