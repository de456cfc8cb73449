package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Question struct {
	ID            string     `db:"id" json:"id"`
	Content       string     `db:"content" json:"content"`
	Images        StringList `db:"images" json:"images"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	IsAnswered    bool       `db:"is_answered" json:"is_answered"`
	IsPublic      bool       `db:"is_public" json:"is_public"` // Listed publicly only once answered
	AnswerContent *string    `db:"answer_content" json:"answer_content"`
	AnswerImages  StringList `db:"answer_images" json:"answer_images"`
	AnsweredAt    *time.Time `db:"answered_at" json:"answered_at"`
}

// Listed reports whether the question belongs in the public feed.
func (q *Question) Listed() bool {
	return q.IsAnswered && q.IsPublic
}

// ImageURLs returns every upload URL the question references, question first.
func (q *Question) ImageURLs() []string {
	urls := make([]string, 0, len(q.Images)+len(q.AnswerImages))
	urls = append(urls, q.Images...)
	urls = append(urls, q.AnswerImages...)
	return urls
}

// StringList is an ordered list of strings stored as a JSON array in a TEXT column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}

	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}

	var items []string
	err := json.Unmarshal(raw, &items)
	if err != nil {
		return fmt.Errorf("invalid string list: %w", err)
	}
	if items == nil {
		items = []string{}
	}
	*l = items
	return nil
}

// MarshalJSON keeps empty lists as [] rather than null.
func (l StringList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}
