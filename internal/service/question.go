package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qabox/qabox/internal/model"
	"github.com/qabox/qabox/internal/repository"
	"github.com/qabox/qabox/internal/validation"
)

var (
	ErrQuestionAnswered = errors.New("question has already been answered")
	ErrTooManyIDs       = fmt.Errorf("at most %d ids per request", validation.MaxBatchIDs)
)

// Notifier is told about every newly submitted question.
type Notifier interface {
	NotifyNewQuestion(ctx context.Context, question *model.Question) error
}

// QuestionInput is the body of a new question.
type QuestionInput struct {
	Content string
	Images  []string
}

// AnswerInput is the body of an answer. IsPublic defaults to true when nil.
type AnswerInput struct {
	Content  string
	Images   []string
	IsPublic *bool
}

// QuestionUpdate carries optional flag changes; nil fields are left alone.
type QuestionUpdate struct {
	IsPublic   *bool
	IsAnswered *bool
}

type QuestionService struct {
	questionRepo repository.QuestionRepository
	codec        *TokenCodec
	uploads      *UploadService
	notifier     Notifier
	askerExpiry  time.Duration

	notifications sync.WaitGroup
}

func NewQuestionService(
	questionRepo repository.QuestionRepository,
	codec *TokenCodec,
	uploads *UploadService,
	notifier Notifier,
	askerExpiry time.Duration,
) *QuestionService {
	return &QuestionService{
		questionRepo: questionRepo,
		codec:        codec,
		uploads:      uploads,
		notifier:     notifier,
		askerExpiry:  askerExpiry,
	}
}

// Create stores a new unanswered, non-public question and returns the asker
// token that can later revoke it.
func (s *QuestionService) Create(ctx context.Context, input QuestionInput) (*model.AskerToken, error) {
	err := validation.ValidateContent(input.Content)
	if err != nil {
		return nil, err
	}
	err = validation.ValidateImageURLs(input.Images)
	if err != nil {
		return nil, err
	}

	question := &model.Question{
		ID:           uuid.New().String(),
		Content:      input.Content,
		Images:       model.StringList(input.Images),
		CreatedAt:    s.codec.Now().UTC(),
		AnswerImages: model.StringList{},
	}
	if question.Images == nil {
		question.Images = model.StringList{}
	}

	err = s.questionRepo.Create(question)
	if err != nil {
		return nil, fmt.Errorf("failed to create question: %w", err)
	}

	claims := NewClaims(model.TokenTypeAsker, question.ID, s.codec.Now(), s.askerExpiry)
	tokenString, err := s.codec.Encode(claims)
	if err != nil {
		// A question nobody can revoke must not linger
		deleteErr := s.questionRepo.Delete(question.ID)
		if deleteErr != nil {
			slog.Error("failed to roll back question", "error", deleteErr, "question_id", question.ID)
		}
		return nil, fmt.Errorf("failed to issue asker token: %w", err)
	}

	slog.Info("question created", "question_id", question.ID, "images", len(question.Images))

	if s.notifier != nil {
		notifyCtx := context.WithoutCancel(ctx)
		s.notifications.Go(func() {
			err := s.notifier.NotifyNewQuestion(notifyCtx, question)
			if err != nil {
				slog.Warn("failed to send new question notification", "error", err, "question_id", question.ID)
			}
		})
	}

	return &model.AskerToken{
		AccessToken: tokenString,
		TokenType:   "bearer",
		QuestionID:  question.ID,
	}, nil
}

// WaitNotifications blocks until every pending new-question notification
// has been attempted.
func (s *QuestionService) WaitNotifications() {
	s.notifications.Wait()
}

// ByID returns a single question regardless of its answered or public state.
func (s *QuestionService) ByID(id string) (*model.Question, error) {
	return s.questionRepo.ByID(id)
}

// Batch looks up many questions at once; unknown ids are skipped.
func (s *QuestionService) Batch(ids []string) ([]*model.Question, error) {
	if len(ids) > validation.MaxBatchIDs {
		return nil, ErrTooManyIDs
	}
	return s.questionRepo.ByIDs(ids)
}

// Public lists answered public questions, most recently answered first.
func (s *QuestionService) Public(skip, limit int) ([]*model.Question, error) {
	return s.questionRepo.Public(skip, limit)
}

// All lists every question, newest first.
func (s *QuestionService) All(skip, limit int) ([]*model.Question, error) {
	return s.questionRepo.All(skip, limit)
}

// Revoke deletes the question named by an asker token, as long as it has not
// been answered yet. Only the record is removed: image URLs are supplied by
// the asker and prove no ownership of the files behind them.
func (s *QuestionService) Revoke(ctx context.Context, tokenString string) (string, error) {
	claims, err := s.codec.Decode(tokenString)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Type != model.TokenTypeAsker || claims.Subject == "" {
		return "", fmt.Errorf("%w: not an asker token", ErrUnauthorized)
	}

	question, err := s.questionRepo.ByID(claims.Subject)
	if err != nil {
		return "", err
	}
	if question.IsAnswered {
		return "", ErrQuestionAnswered
	}

	err = s.questionRepo.Delete(question.ID)
	if err != nil {
		return "", err
	}

	slog.Info("question revoked by asker", "question_id", question.ID)

	return question.ID, nil
}

// Update changes the public or answered flags of a question.
func (s *QuestionService) Update(id string, update QuestionUpdate) (*model.Question, error) {
	question, err := s.questionRepo.ByID(id)
	if err != nil {
		return nil, err
	}

	if update.IsPublic != nil {
		question.IsPublic = *update.IsPublic
	}
	if update.IsAnswered != nil {
		question.IsAnswered = *update.IsAnswered
		if question.IsAnswered && question.AnsweredAt == nil {
			now := s.codec.Now().UTC()
			question.AnsweredAt = &now
		}
	}

	err = s.questionRepo.Update(question)
	if err != nil {
		return nil, err
	}

	slog.Info("question updated", "question_id", id, "is_public", question.IsPublic, "is_answered", question.IsAnswered)
	return question, nil
}

// Answer attaches an answer to a question and marks it answered. Answering
// again replaces the previous answer.
func (s *QuestionService) Answer(id string, input AnswerInput) (*model.Question, error) {
	err := validation.ValidateContent(input.Content)
	if err != nil {
		return nil, err
	}
	err = validation.ValidateImageURLs(input.Images)
	if err != nil {
		return nil, err
	}

	question, err := s.questionRepo.ByID(id)
	if err != nil {
		return nil, err
	}

	now := s.codec.Now().UTC()
	content := input.Content
	question.AnswerContent = &content
	question.AnswerImages = model.StringList(input.Images)
	if question.AnswerImages == nil {
		question.AnswerImages = model.StringList{}
	}
	question.IsAnswered = true
	question.AnsweredAt = &now
	question.IsPublic = true
	if input.IsPublic != nil {
		question.IsPublic = *input.IsPublic
	}

	err = s.questionRepo.Update(question)
	if err != nil {
		return nil, err
	}

	slog.Info("question answered", "question_id", id, "is_public", question.IsPublic)
	return question, nil
}

// Delete removes a question and the images it references, except those
// still listed by another question. Image deletion is best effort; the count
// of files actually removed is returned.
func (s *QuestionService) Delete(ctx context.Context, id string) (int, error) {
	question, err := s.questionRepo.ByID(id)
	if err != nil {
		return 0, err
	}

	err = s.questionRepo.Delete(id)
	if err != nil {
		return 0, err
	}

	removed := s.purgeImages(ctx, question)
	slog.Info("question deleted", "question_id", id, "images_deleted", removed)
	return removed, nil
}

func (s *QuestionService) purgeImages(ctx context.Context, question *model.Question) int {
	if s.uploads == nil {
		return 0
	}

	var urls []string
	for _, url := range question.ImageURLs() {
		shared, err := s.questionRepo.ImageReferenced(url, question.ID)
		if err != nil {
			slog.Warn("failed to check image references, keeping file", "error", err, "url", url)
			continue
		}
		if shared {
			slog.Info("keeping image still used by another question", "url", url)
			continue
		}
		urls = append(urls, url)
	}
	if len(urls) == 0 {
		return 0
	}

	removed := s.uploads.DeleteByURLs(ctx, urls)

	_, err := s.uploads.CleanupEmptyFolders()
	if err != nil {
		slog.Warn("failed to clean up upload folders", "error", err)
	}
	return removed
}
