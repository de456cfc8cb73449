package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/qabox/qabox/internal/model"
)

var (
	ErrQuestionNotFound = errors.New("question not found")
)

type QuestionRepository interface {
	Create(question *model.Question) error
	ByID(id string) (*model.Question, error)
	ByIDs(ids []string) ([]*model.Question, error)
	Public(offset, limit int) ([]*model.Question, error)
	All(offset, limit int) ([]*model.Question, error)
	Update(question *model.Question) error
	Delete(id string) error
	ImageReferenced(url, excludeID string) (bool, error)
}

type questionRepository struct {
	db *sqlx.DB
}

func NewQuestionRepository(db *sqlx.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) Create(question *model.Question) error {
	query := `INSERT INTO questions (id, content, images, created_at, is_answered, is_public, answer_content, answer_images, answered_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(query,
		question.ID,
		question.Content,
		question.Images,
		question.CreatedAt,
		question.IsAnswered,
		question.IsPublic,
		question.AnswerContent,
		question.AnswerImages,
		question.AnsweredAt,
	)

	return err
}

func (r *questionRepository) ByID(id string) (*model.Question, error) {
	question := &model.Question{}
	query := `SELECT * FROM questions WHERE id = $1`

	err := r.db.Get(question, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, err
	}

	return question, nil
}

// ByIDs returns the questions matching ids, newest first. Unknown ids are skipped.
func (r *questionRepository) ByIDs(ids []string) ([]*model.Question, error) {
	questions := []*model.Question{}
	if len(ids) == 0 {
		return questions, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM questions WHERE id IN (?) ORDER BY created_at DESC`, ids)
	if err != nil {
		return nil, err
	}

	err = r.db.Select(&questions, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}

	return questions, nil
}

// Public lists answered questions marked public, most recently answered first.
func (r *questionRepository) Public(offset, limit int) ([]*model.Question, error) {
	questions := []*model.Question{}
	query := `SELECT * FROM questions
	          WHERE is_answered = $1 AND is_public = $2
	          ORDER BY answered_at DESC
	          LIMIT $3 OFFSET $4`

	err := r.db.Select(&questions, query, true, true, limit, offset)
	if err != nil {
		return nil, err
	}

	return questions, nil
}

func (r *questionRepository) All(offset, limit int) ([]*model.Question, error) {
	questions := []*model.Question{}
	query := `SELECT * FROM questions ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	err := r.db.Select(&questions, query, limit, offset)
	if err != nil {
		return nil, err
	}

	return questions, nil
}

func (r *questionRepository) Update(question *model.Question) error {
	query := `UPDATE questions
	          SET content = $1, images = $2, is_answered = $3, is_public = $4,
	              answer_content = $5, answer_images = $6, answered_at = $7
	          WHERE id = $8`

	result, err := r.db.Exec(query,
		question.Content,
		question.Images,
		question.IsAnswered,
		question.IsPublic,
		question.AnswerContent,
		question.AnswerImages,
		question.AnsweredAt,
		question.ID,
	)
	if err != nil {
		return err
	}

	return expectRow(result)
}

func (r *questionRepository) Delete(id string) error {
	query := `DELETE FROM questions WHERE id = $1`
	result, err := r.db.Exec(query, id)
	if err != nil {
		return err
	}

	return expectRow(result)
}

// ImageReferenced reports whether any question other than excludeID lists
// url among its question or answer images.
func (r *questionRepository) ImageReferenced(url, excludeID string) (bool, error) {
	encoded, err := json.Marshal(url)
	if err != nil {
		return false, err
	}
	pattern := "%" + likeEscaper.Replace(string(encoded)) + "%"

	// LIKE narrows the candidates; the exact match happens on the decoded lists
	rows := []struct {
		Images       model.StringList `db:"images"`
		AnswerImages model.StringList `db:"answer_images"`
	}{}
	query := `SELECT images, answer_images FROM questions
	          WHERE id <> $1 AND (images LIKE $2 ESCAPE '\' OR answer_images LIKE $3 ESCAPE '\')`

	err = r.db.Select(&rows, query, excludeID, pattern, pattern)
	if err != nil {
		return false, err
	}

	for _, row := range rows {
		if slices.Contains(row.Images, url) || slices.Contains(row.AnswerImages, url) {
			return true, nil
		}
	}
	return false, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// expectRow maps a write that touched nothing to ErrQuestionNotFound.
func expectRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrQuestionNotFound
	}
	return nil
}
