package web

import (
	"net/http"

	"github.com/JonMunkholm/agrionboard/internal/core"
	"github.com/go-chi/chi/v5"
)

func (s *Server) dispatcher() (*core.Dispatcher, error) {
	d := s.service.Dispatcher()
	if d == nil {
		return nil, core.ValidationErrorf("messaging is not configured")
	}
	return d, nil
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	d, err := s.dispatcher()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, d.Templates().List())
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	d, err := s.dispatcher()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req core.CreateTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	t, err := d.Templates().Create(req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, t)
}

func (s *Server) handleRenderTemplate(w http.ResponseWriter, r *http.Request) {
	d, err := s.dispatcher()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var req struct {
		Variables map[string]string `json:"variables"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	msg, err := d.Render(chi.URLParam(r, "id"), req.Variables)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, msg)
}
