package ctxkeys

import (
	"context"

	"github.com/qabox/qabox/internal/model"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	AdminSessionKey contextKey = "admin_session"
)

// AdminSession returns the verified admin session, or nil for anonymous requests.
func AdminSession(ctx context.Context) *model.AdminSession {
	session, _ := ctx.Value(AdminSessionKey).(*model.AdminSession)
	return session
}

func WithAdminSession(ctx context.Context, session *model.AdminSession) context.Context {
	return context.WithValue(ctx, AdminSessionKey, session)
}
