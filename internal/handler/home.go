package handler

import (
	"net/http"

	"github.com/qabox/qabox/internal/render"
)

type HomeHandler struct {
	appName string
}

func NewHomeHandler(appName string) *HomeHandler {
	return &HomeHandler{
		appName: appName,
	}
}

func (h *HomeHandler) Root(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, http.StatusOK, map[string]string{
		"message": h.appName + " API is running",
	})
}

func (h *HomeHandler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (h *HomeHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	render.Fail(w, r, http.StatusNotFound, render.CodeNotFound, "Not found")
}
