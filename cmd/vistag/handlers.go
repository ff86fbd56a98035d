package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/brunobiangulo/vistag"
	"github.com/brunobiangulo/vistag/store"
)

type handler struct {
	tagger vistag.Tagger
}

func newHandler(t vistag.Tagger) *handler {
	return &handler{tagger: t}
}

// POST /process_image
// Tagging failures are reported in the body with status "failed" and HTTP 200;
// only malformed requests get a 4xx.
func (h *handler) handleProcessImage(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	var req struct {
		ImageInfo string `json:"image_info"`
		Detail    bool   `json:"detail,omitempty"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 32<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ImageInfo == "" {
		writeError(w, http.StatusBadRequest, "image_info is required")
		return
	}

	var opts []vistag.ProcessOption
	if req.Detail {
		opts = append(opts, vistag.WithBranchDetail())
	}
	res := h.tagger.Process(ctx, req.ImageInfo, opts...)
	if res.Status != vistag.StatusSuccess {
		slog.Warn("process_image failed", "run_id", res.RunID, "error", res.Error)
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /runs?limit=N
func (h *handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s := h.tagger.Store()
	if s == nil {
		writeError(w, http.StatusNotFound, "audit store not configured")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := s.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		slog.Error("list runs error", "error", err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GET /runs/{id}
func (h *handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	s := h.tagger.Store()
	if s == nil {
		writeError(w, http.StatusNotFound, "audit store not configured")
		return
	}
	id := r.PathValue("id")
	run, err := s.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load run")
		slog.Error("get run error", "run_id", id, "error", err)
		return
	}
	calls, err := s.BranchCalls(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load branch calls")
		slog.Error("branch calls error", "run_id", id, "error", err)
		return
	}
	if calls == nil {
		calls = []store.BranchCall{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run":          run,
		"branch_calls": calls,
	})
}

// GET /taxonomy
func (h *handler) handleTaxonomy(w http.ResponseWriter, r *http.Request) {
	reg := h.tagger.Taxonomy()
	writeJSON(w, http.StatusOK, map[string]any{
		"version": reg.Version(),
		"tags":    reg.Tags(),
	})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
