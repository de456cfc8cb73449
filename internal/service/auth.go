package service

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qabox/qabox/internal/model"
	"github.com/qabox/qabox/internal/validation"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnauthorized       = errors.New("invalid or expired token")
)

// dummyHash keeps login timing uniform when the username does not match.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("qabox-timing-equaliser"), bcrypt.DefaultCost)

// AuthService manages admin sessions. Sessions are never stored: every
// request rebuilds the identity from the signed token it carries.
type AuthService struct {
	codec         *TokenCodec
	username      string
	passwordHash  string
	expiry        time.Duration
	refreshWindow time.Duration
}

func NewAuthService(
	codec *TokenCodec,
	username string,
	passwordHash string,
	expiry time.Duration,
	refreshWindow time.Duration,
) *AuthService {
	return &AuthService{
		codec:         codec,
		username:      username,
		passwordHash:  passwordHash,
		expiry:        expiry,
		refreshWindow: refreshWindow,
	}
}

func (s *AuthService) Login(username, password string) (*model.AdminToken, error) {
	usernameOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1

	hash := []byte(s.passwordHash)
	if !usernameOK {
		hash = dummyHash
	}
	passwordErr := bcrypt.CompareHashAndPassword(hash, []byte(password))

	if !usernameOK || passwordErr != nil {
		slog.Warn("admin login failed", "username", username)
		return nil, fmt.Errorf("admin login: %w", ErrInvalidCredentials)
	}

	token, err := s.IssueToken(username)
	if err != nil {
		return nil, err
	}

	slog.Info("admin logged in", "username", username, "expires_at", token.ExpiresAt)
	return token, nil
}

// IssueToken mints an admin token with a full expiry window.
func (s *AuthService) IssueToken(username string) (*model.AdminToken, error) {
	claims := NewClaims(model.TokenTypeAdmin, username, s.codec.Now(), s.expiry)

	tokenString, err := s.codec.Encode(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to issue admin token: %w", err)
	}

	return &model.AdminToken{
		AccessToken: tokenString,
		TokenType:   "bearer",
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}

// Authenticate verifies an admin token. When the remaining lifetime is below
// the refresh window a replacement token is minted and returned on the
// session; delivering it to the client is up to the caller.
func (s *AuthService) Authenticate(tokenString string) (*model.AdminSession, error) {
	claims, err := s.codec.Decode(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Type != model.TokenTypeAdmin || claims.Subject == "" {
		return nil, fmt.Errorf("%w: not an admin token", ErrUnauthorized)
	}

	session := &model.AdminSession{
		Username:  claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}

	remaining := session.ExpiresAt.Sub(s.codec.Now())
	if remaining < s.refreshWindow {
		renewed, err := s.IssueToken(session.Username)
		if err != nil {
			// The presented token is still valid; renewal can wait for the next call
			slog.Error("failed to renew admin token", "error", err, "username", session.Username)
			return session, nil
		}
		session.Renewed = renewed
		slog.Debug("admin token renewed", "username", session.Username, "remaining", remaining)
	}

	return session, nil
}

// HashPassword produces the bcrypt hash expected in ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	err := validation.ValidatePassword(password)
	if err != nil {
		return "", err
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}
