package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/qabox/qabox/internal/backup"
	"github.com/qabox/qabox/internal/config"
	"github.com/qabox/qabox/internal/db"
	"github.com/qabox/qabox/internal/repository"
	"github.com/qabox/qabox/internal/service"
	"github.com/qabox/qabox/internal/storage"
)

// UploadURLPrefix is where uploaded files are served from.
const UploadURLPrefix = "/uploads"

type App struct {
	Cfg             *config.Config
	DB              *sqlx.DB
	AuthService     *service.AuthService
	QuestionService *service.QuestionService
	UploadService   *service.UploadService
	EmailService    *service.EmailService // nil when notifications are off
	BackupManager   *backup.Manager       // nil when the database is not SQLite
	Uploads         *storage.LocalStorage
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	err = db.RunMigrations(ctx, database.DB, cfg.DBDriver)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Repositories
	questionRepository := repository.NewQuestionRepository(database)

	// Storage
	uploads, err := storage.NewLocalStorage(cfg.UploadDir, UploadURLPrefix)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize upload storage: %w", err)
	}

	backupManager, err := newBackupManager(ctx, cfg)
	if err != nil {
		database.Close()
		return nil, err
	}

	// Services
	codec, err := service.NewTokenCodec(cfg.JWTSecret, cfg.JWTAlgorithm)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}

	emailService := service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.AdminNotifyEmail,
		cfg.AppURL,
		cfg.AppName,
		cfg.IsDevelopment(),
	)
	var notifier service.Notifier
	if emailService != nil {
		notifier = emailService
	}

	authService := service.NewAuthService(
		codec,
		cfg.AdminUsername,
		cfg.AdminPasswordHash,
		cfg.AdminTokenExpiry,
		cfg.AdminTokenRefresh,
	)
	uploadService := service.NewUploadService(uploads, cfg.UploadMaxSize)
	questionService := service.NewQuestionService(
		questionRepository,
		codec,
		uploadService,
		notifier,
		cfg.AskerTokenExpiry,
	)

	return &App{
		Cfg:             cfg,
		DB:              database,
		AuthService:     authService,
		QuestionService: questionService,
		UploadService:   uploadService,
		EmailService:    emailService,
		BackupManager:   backupManager,
		Uploads:         uploads,
	}, nil
}

// newBackupManager returns nil for databases that are not a local SQLite file.
func newBackupManager(ctx context.Context, cfg *config.Config) (*backup.Manager, error) {
	dbPath := cfg.SQLitePath()
	if dbPath == "" {
		slog.Info("backups disabled: database is not a SQLite file", "driver", cfg.DBDriver)
		return nil, nil
	}

	mirror, err := storage.NewBackupMirror(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backup mirror: %w", err)
	}

	manager, err := backup.NewManager(backup.Config{
		DBPath:   dbPath,
		Dir:      cfg.BackupDir,
		MaxCount: cfg.BackupMaxCount,
		Interval: cfg.BackupInterval,
		Mirror:   mirror,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backups: %w", err)
	}
	return manager, nil
}

func (a *App) Close() error {
	if a.DB != nil {
		return db.Close(a.DB)
	}
	return nil
}
