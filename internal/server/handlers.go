package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/altiplano/parasearch/internal/cli"
	"github.com/altiplano/parasearch/internal/session"
)

type queryBody struct {
	Query *string `json:"query"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, cli.NewSessionView(s.ctrl.Snapshot()))
}

func (s *Server) handleSetQuery(w http.ResponseWriter, r *http.Request) {
	var body queryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Query == nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.ctrl.SetQuery(*body.Query)
	s.respondJSON(w, http.StatusOK, cli.NewSessionView(s.ctrl.Snapshot()))
}

// handleSearch submits the body query, or the query buffer when the body names none.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body queryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cur := s.ctrl.Snapshot()
	query := cur.Query
	if body.Query != nil {
		query = *body.Query
	}
	if strings.TrimSpace(query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	seq, err := s.ctrl.TrySubmit(query)
	switch {
	case errors.Is(err, session.ErrBusy):
		s.respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.respondError(w, http.StatusServiceUnavailable, "session stopped")
		return
	}
	s.logger.Debug("search submitted",
		zap.Uint64("seq", seq),
		zap.String("request_id", middleware.GetReqID(r.Context())))
	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{"seq": seq, "status": "loading"})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid index")
		return
	}
	if !s.ctrl.Toggle(i) {
		s.respondError(w, http.StatusNotFound, "no expandable result at index")
		return
	}
	s.respondJSON(w, http.StatusOK, cli.NewSessionView(s.ctrl.Snapshot()))
}

func (s *Server) handleExamples(w http.ResponseWriter, r *http.Request) {
	examples := s.ctrl.Snapshot().Examples
	if examples == nil {
		examples = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"examples": examples})
}

func (s *Server) handleUseExample(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid index")
		return
	}
	if !s.ctrl.UseExample(i) {
		s.respondError(w, http.StatusNotFound, "example not found")
		return
	}
	s.respondJSON(w, http.StatusOK, cli.NewSessionView(s.ctrl.Snapshot()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
