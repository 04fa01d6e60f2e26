// Package api exposes the coordinator over HTTP: page registry CRUD, a
// command relay, markdown export, and a websocket stream of heading
// updates.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/EaziSpace/gen-toc/coordinator"
	"github.com/EaziSpace/gen-toc/export"
	"github.com/EaziSpace/gen-toc/headings"
)

// Server serves the HTTP API.
type Server struct {
	coord    *coordinator.Coordinator
	exporter *export.Exporter
	log      *slog.Logger
}

// NewServer creates a Server around a coordinator.
func NewServer(coord *coordinator.Coordinator, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{coord: coord, exporter: export.New(), log: log}
}

// Router builds the chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/pages", s.handleAttach)
		r.Get("/pages", s.handleListPages)
		r.Get("/pages/{id}", s.handleGetPage)
		r.Delete("/pages/{id}", s.handleClosePage)
		r.Post("/pages/{id}/commands", s.handleCommand)
		r.Get("/pages/{id}/export", s.handleExport)
		r.Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("url is required"))
		return
	}

	id, err := s.coord.Attach(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	rec, _ := s.coord.Page(id)
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListPages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"pages": s.coord.Pages()})
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.coord.Page(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown page"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleClosePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.coord.Page(id); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown page"))
		return
	}
	s.coord.PageClosed(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd coordinator.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	cmd.PageID = chi.URLParam(r, "id")

	resp, err := s.coord.Relay(r.Context(), cmd)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp, err := s.coord.Relay(r.Context(), coordinator.Command{Action: "getHeadings", PageID: id})
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if !resp.Success {
		writeError(w, http.StatusBadGateway, fmt.Errorf("%s", resp.Error))
		return
	}

	title := r.URL.Query().Get("title")
	if title == "" {
		if rec, ok := s.coord.Page(id); ok {
			title = rec.URL
		}
	}

	recs := make([]headings.Record, len(resp.Headings))
	for i, h := range resp.Headings {
		recs[i] = headings.Record{Text: h.Text, Level: h.Level, ID: h.ID, VerticalPos: h.Position}
	}
	md, err := s.exporter.Markdown(title, recs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(md))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
