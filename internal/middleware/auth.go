package middleware

import (
	"net/http"
	"strings"

	"github.com/qabox/qabox/internal/ctxkeys"
	"github.com/qabox/qabox/internal/render"
	"github.com/qabox/qabox/internal/service"
)

// NewTokenHeader carries a renewed admin token back to the client.
const NewTokenHeader = "X-New-Token"

// RequireAdmin rejects requests without a valid admin bearer token. The
// verified session is stored in the context, and a renewed token, if one was
// minted, is sent in the X-New-Token response header.
func RequireAdmin(authService *service.AuthService) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				render.Error(w, r, service.ErrUnauthorized)
				return
			}

			session, err := authService.Authenticate(token)
			if err != nil {
				render.Error(w, r, err)
				return
			}

			if session.Renewed != nil {
				w.Header().Set(NewTokenHeader, session.Renewed.AccessToken)
			}

			ctx := ctxkeys.WithAdminSession(r.Context(), session)
			next(w, r.WithContext(ctx))
		}
	}
}

// OptionalAdmin attaches the admin session when a valid admin token is
// present and otherwise lets the request through anonymously.
func OptionalAdmin(authService *service.AuthService) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				next(w, r)
				return
			}

			session, err := authService.Authenticate(token)
			if err != nil {
				// Not an admin; treat as anonymous
				next(w, r)
				return
			}

			if session.Renewed != nil {
				w.Header().Set(NewTokenHeader, session.Renewed.AccessToken)
			}

			ctx := ctxkeys.WithAdminSession(r.Context(), session)
			next(w, r.WithContext(ctx))
		}
	}
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
