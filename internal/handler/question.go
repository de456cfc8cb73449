package handler

import (
	"errors"
	"net/http"

	"github.com/qabox/qabox/internal/model"
	"github.com/qabox/qabox/internal/render"
	"github.com/qabox/qabox/internal/service"
)

const (
	publicPageDefault = 20
	publicPageMax     = 100
)

type QuestionHandler struct {
	questionService *service.QuestionService
}

func NewQuestionHandler(questionService *service.QuestionService) *QuestionHandler {
	return &QuestionHandler{
		questionService: questionService,
	}
}

type createQuestionRequest struct {
	Content string   `json:"content"`
	Images  []string `json:"images"`
}

type revokeRequest struct {
	Token string `json:"token"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *QuestionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createQuestionRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		badBody(w, r, err)
		return
	}

	token, err := h.questionService.Create(r.Context(), service.QuestionInput{
		Content: req.Content,
		Images:  req.Images,
	})
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, r, http.StatusOK, token)
}

func (h *QuestionHandler) Get(w http.ResponseWriter, r *http.Request) {
	question, err := h.questionService.ByID(r.PathValue("id"))
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, r, http.StatusOK, question)
}

func (h *QuestionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		badBody(w, r, err)
		return
	}

	_, err = h.questionService.Revoke(r.Context(), req.Token)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, r, http.StatusOK, messageResponse{Message: "Question revoked successfully"})
}

func (h *QuestionHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	p, err := parsePage(r, publicPageDefault, publicPageMax)
	if err != nil {
		render.BadRequest(w, r, err.Error())
		return
	}

	questions, err := h.questionService.Public(p.skip, p.limit)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, r, http.StatusOK, questionList(questions))
}

func (h *QuestionHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var ids []string
	err := decodeJSON(w, r, &ids)
	if err != nil {
		badBody(w, r, err)
		return
	}

	questions, err := h.questionService.Batch(ids)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, r, http.StatusOK, questionList(questions))
}

func badBody(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		render.Error(w, r, err)
		return
	}
	render.BadRequest(w, r, err.Error())
}

// questionList keeps list responses as [] rather than null.
func questionList(questions []*model.Question) []*model.Question {
	if questions == nil {
		return []*model.Question{}
	}
	return questions
}
