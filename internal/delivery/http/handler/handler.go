package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/user/stealth-crawler/internal/delivery/http/response"
	"github.com/user/stealth-crawler/internal/usecase"
)

// ProgressReporter exposes the progress of the running crawl.
type ProgressReporter interface {
	Progress() usecase.Progress
}

type Handler struct {
	crawler ProgressReporter
}

func NewHandler(crawler ProgressReporter) *Handler {
	return &Handler{
		crawler: crawler,
	}
}

func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	p := h.crawler.Progress()
	resp := response.StatusResponse{
		Status:     p.Status,
		StartURL:   p.StartURL,
		Mode:       p.Mode,
		MaxDepth:   p.MaxDepth,
		CurrentURL: p.CurrentURL,
		Visited:    p.Visited,
		Fetched:    p.Fetched,
		Failed:     p.Failed,
		Challenges: p.Challenges,
		Output:     p.Output,
		StartedAt:  p.StartedAt,
		FinishedAt: p.FinishedAt,
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleNotFound answers unknown API paths with a JSON error.
func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusNotFound, response.ErrorResponse{Error: "not found"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}
