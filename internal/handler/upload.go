package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/qabox/qabox/internal/ctxkeys"
	"github.com/qabox/qabox/internal/render"
	"github.com/qabox/qabox/internal/service"
)

const (
	uploadFormField = "file"
	// Room for multipart boundaries and headers on top of the file itself
	multipartOverhead = 1 << 20
	// Parts beyond this are spilled to temp files while parsing
	multipartMemory = 8 << 20
)

type UploadHandler struct {
	uploadService *service.UploadService
}

func NewUploadHandler(uploadService *service.UploadService) *UploadHandler {
	return &UploadHandler{
		uploadService: uploadService,
	}
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload accepts a multipart file. Admins may upload files of any size;
// everyone else is held to the configured cap.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	privileged := ctxkeys.AdminSession(r.Context()) != nil

	maxSize := h.uploadService.MaxSize()
	if !privileged && maxSize > 0 {
		if r.ContentLength > maxSize+multipartOverhead {
			render.Error(w, r, service.ErrPayloadTooLarge)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
	}

	err := r.ParseMultipartForm(multipartMemory)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			render.Error(w, r, err)
			return
		}
		render.BadRequest(w, r, "Expected a multipart form with a file field")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		render.BadRequest(w, r, "No file uploaded")
		return
	}
	defer file.Close()

	url, err := h.uploadService.Upload(r.Context(), header.Filename, header.Size, file, privileged)
	if err != nil {
		if errors.Is(err, service.ErrPayloadTooLarge) {
			slog.Warn("upload rejected", "error", err, "filename", header.Filename, "size", header.Size)
		}
		render.Error(w, r, err)
		return
	}

	render.JSON(w, r, http.StatusOK, uploadResponse{URL: url})
}
