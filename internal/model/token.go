package model

import (
	"time"
)

const (
	TokenTypeAdmin = "admin"
	TokenTypeAsker = "asker"
)

// AdminToken is a freshly minted admin session credential.
type AdminToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AdminSession is the identity reconstructed from a verified admin token.
// Renewed is set when the presented token was close to expiry and a
// replacement with a full window has been minted.
type AdminSession struct {
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Renewed   *AdminToken
}

// AskerToken is the one-time response to a question submission. The access
// token is the only credential able to revoke the question.
type AskerToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	QuestionID  string `json:"question_id"`
}
