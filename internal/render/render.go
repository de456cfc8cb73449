package render

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/qabox/qabox/internal/repository"
	"github.com/qabox/qabox/internal/service"
	"github.com/qabox/qabox/internal/validation"
)

const (
	CodeUnauthorized    = "unauthorized"
	CodeNotFound        = "not_found"
	CodeInvalidState    = "invalid_state"
	CodePayloadTooLarge = "payload_too_large"
	CodeBadRequest      = "bad_request"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("render json failed", "error", err, "path", r.URL.Path)
	}
}

// Fail writes an error response with an explicit status and code.
func Fail(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	JSON(w, r, status, ErrorBody{Code: code, Message: message})
}

// Error maps err onto the API error taxonomy. Unknown errors become 500
// and are logged; their message never reaches the client.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		Fail(w, r, http.StatusUnauthorized, CodeUnauthorized, "Invalid username or password")
	case errors.Is(err, service.ErrUnauthorized):
		Fail(w, r, http.StatusUnauthorized, CodeUnauthorized, "Invalid or expired token")
	case errors.Is(err, repository.ErrQuestionNotFound):
		Fail(w, r, http.StatusNotFound, CodeNotFound, "Question not found")
	case errors.Is(err, service.ErrQuestionAnswered):
		Fail(w, r, http.StatusConflict, CodeInvalidState, "Question has already been answered and can no longer be revoked")
	case errors.Is(err, service.ErrPayloadTooLarge), errors.As(err, &maxBytesErr):
		Fail(w, r, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "File is too large")
	case errors.Is(err, service.ErrTooManyIDs),
		errors.Is(err, validation.ErrContentRequired),
		errors.Is(err, validation.ErrContentTooLong),
		errors.Is(err, validation.ErrTooManyImages),
		errors.Is(err, validation.ErrInvalidImageURL):
		Fail(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
	default:
		slog.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		Fail(w, r, http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}

// BadRequest reports a malformed request.
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	Fail(w, r, http.StatusBadRequest, CodeBadRequest, message)
}
