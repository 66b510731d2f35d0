package server

import (
	"encoding/json"
	"net/http"

	"github.com/entrhq/rendercrawl/pkg/browser"
)

const maxRequestBodyBytes = 1 << 20

type crawlRequest struct {
	URL string `json:"url"`
}

type healthResponse struct {
	Status    string           `json:"status"`
	Browser   browser.Snapshot `json:"browser"`
	Timestamp string           `json:"timestamp"`
}

func (s *Server) handleCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	target := req.URL
	if target == "" {
		respondError(w, http.StatusBadRequest, "URL is required")
		return
	}

	res := s.crawler.Crawl(r.Context(), target)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Browser:   s.health.Snapshot(),
		Timestamp: s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// respondJSON sends a JSON response with appropriate headers.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// respondError sends the failure shape every client already understands.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Success: false, Error: message})
}
