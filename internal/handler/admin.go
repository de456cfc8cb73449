package handler

import (
	"net/http"
	"path/filepath"

	"github.com/qabox/qabox/internal/backup"
	"github.com/qabox/qabox/internal/ctxkeys"
	"github.com/qabox/qabox/internal/model"
	"github.com/qabox/qabox/internal/render"
	"github.com/qabox/qabox/internal/service"
)

const (
	adminPageDefault = 100
	adminPageMax     = 1000
)

type AdminHandler struct {
	authService     *service.AuthService
	questionService *service.QuestionService
	uploadService   *service.UploadService
	backupManager   *backup.Manager // nil when backups are disabled
}

func NewAdminHandler(
	authService *service.AuthService,
	questionService *service.QuestionService,
	uploadService *service.UploadService,
	backupManager *backup.Manager,
) *AdminHandler {
	return &AdminHandler{
		authService:     authService,
		questionService: questionService,
		uploadService:   uploadService,
		backupManager:   backupManager,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type verifyResponse struct {
	Valid    bool    `json:"valid"`
	Username string  `json:"username"`
	NewToken *string `json:"new_token"`
}

type updateQuestionRequest struct {
	IsPublic   *bool `json:"is_public"`
	IsAnswered *bool `json:"is_answered"`
}

type answerRequest struct {
	AnswerContent string   `json:"answer_content"`
	AnswerImages  []string `json:"answer_images"`
	IsPublic      *bool    `json:"is_public"`
}

type deleteResponse struct {
	Message       string `json:"message"`
	DeletedImages int    `json:"deleted_images"`
}

type cleanupResponse struct {
	RemovedFolders int `json:"removed_folders"`
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		badBody(w, r, err)
		return
	}

	token, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, r, http.StatusOK, token)
}

func (h *AdminHandler) Verify(w http.ResponseWriter, r *http.Request) {
	session := ctxkeys.AdminSession(r.Context())

	resp := verifyResponse{
		Valid:    true,
		Username: session.Username,
	}
	if session.Renewed != nil {
		resp.NewToken = &session.Renewed.AccessToken
	}

	render.JSON(w, r, http.StatusOK, resp)
}

func (h *AdminHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	p, err := parsePage(r, adminPageDefault, adminPageMax)
	if err != nil {
		render.BadRequest(w, r, err.Error())
		return
	}

	questions, err := h.questionService.All(p.skip, p.limit)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, r, http.StatusOK, questionList(questions))
}

func (h *AdminHandler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var req updateQuestionRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		badBody(w, r, err)
		return
	}

	question, err := h.questionService.Update(r.PathValue("id"), service.QuestionUpdate{
		IsPublic:   req.IsPublic,
		IsAnswered: req.IsAnswered,
	})
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, r, http.StatusOK, question)
}

func (h *AdminHandler) AnswerQuestion(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		badBody(w, r, err)
		return
	}

	question, err := h.questionService.Answer(r.PathValue("id"), service.AnswerInput{
		Content:  req.AnswerContent,
		Images:   req.AnswerImages,
		IsPublic: req.IsPublic,
	})
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, r, http.StatusOK, question)
}

func (h *AdminHandler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.questionService.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, r, http.StatusOK, deleteResponse{
		Message:       "Question deleted",
		DeletedImages: deleted,
	})
}

func (h *AdminHandler) ListBackups(w http.ResponseWriter, r *http.Request) {
	if h.backupManager == nil {
		h.backupsDisabled(w, r)
		return
	}

	backups, err := h.backupManager.List()
	if err != nil {
		render.Error(w, r, err)
		return
	}
	if backups == nil {
		backups = []model.Backup{}
	}

	render.JSON(w, r, http.StatusOK, backups)
}

func (h *AdminHandler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	if h.backupManager == nil {
		h.backupsDisabled(w, r)
		return
	}

	path, err := h.backupManager.Snapshot(r.Context(), true)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, r, http.StatusCreated, map[string]string{
		"name": filepath.Base(path),
	})
}

func (h *AdminHandler) CleanupUploads(w http.ResponseWriter, r *http.Request) {
	removed, err := h.uploadService.CleanupEmptyFolders()
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, r, http.StatusOK, cleanupResponse{RemovedFolders: removed})
}

func (h *AdminHandler) backupsDisabled(w http.ResponseWriter, r *http.Request) {
	render.Fail(w, r, http.StatusServiceUnavailable, render.CodeUnavailable, "Backups are only available for SQLite databases")
}
