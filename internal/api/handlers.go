// Package api serves the ledger and curated runs over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/shortlist/internal/ledger"
	"github.com/kalambet/shortlist/internal/ranking"
	"github.com/kalambet/shortlist/internal/storage"
	"github.com/kalambet/shortlist/internal/worker"
)

const maxRequestBodySize = 1 << 20 // 1MB

// PageReader returns a stored page body for a content ref.
type PageReader interface {
	Read(ref string) (string, error)
}

// Deps holds what the HTTP and MCP layers read from.
type Deps struct {
	Store  *storage.Store
	Ledger ledger.Log
	Pages  PageReader
	// Token enables bearer auth on every route except /health.
	Token string
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Ledger    ledger.Stats `json:"ledger"`
	LatestRun *storage.Run `json:"latest_run,omitempty"`
}

// CuratedResponse is the body of GET /curated.
type CuratedResponse struct {
	Run   storage.Run    `json:"run"`
	Items []ranking.Item `json:"items"`
}

// NewHandler returns the read API router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(requireToken(deps.Token))
		}
		r.Get("/stats", handleStats(deps))
		r.Get("/runs", handleListRuns(deps))
		r.Post("/runs", handleStartRun(deps))
		r.Get("/jobs/{id}", handleGetJob(deps))
		r.Get("/curated", handleListCurated(deps))
		r.Get("/curated/{rank}", handleGetCurated(deps))
	})
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// stats summarizes the ledger and looks up the latest run, which may not exist.
func stats(ctx context.Context, deps Deps) (StatsResponse, error) {
	records, err := deps.Ledger.Records(ctx)
	if err != nil {
		return StatsResponse{}, fmt.Errorf("reading ledger: %w", err)
	}
	resp := StatsResponse{Ledger: ledger.Summarize(records)}
	run, err := deps.Store.LatestRun(ctx)
	switch {
	case err == nil:
		resp.LatestRun = &run
	case !errors.Is(err, storage.ErrNotFound):
		return StatsResponse{}, fmt.Errorf("loading latest run: %w", err)
	}
	return resp, nil
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := stats(r.Context(), deps)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleListRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		runs, err := deps.Store.ListRuns(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list runs: %v", err)
			return
		}
		if runs == nil {
			runs = []storage.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleStartRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req worker.RunRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
				return
			}
		}
		job, err := enqueueRun(r.Context(), deps.Store, req)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     job.ID,
			"status": "queued",
		})
	}
}

func enqueueRun(ctx context.Context, store *storage.Store, req worker.RunRequest) (storage.Job, error) {
	job, err := worker.NewRunJob(req)
	if err != nil {
		return storage.Job{}, err
	}
	job, err = store.EnqueueJob(ctx, job)
	if err != nil {
		return storage.Job{}, fmt.Errorf("failed to enqueue run: %w", err)
	}
	return job, nil
}

func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Store.GetJob(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// runFor resolves the ?run= parameter, defaulting to the latest run.
func runFor(r *http.Request, store *storage.Store) (storage.Run, error) {
	if id := r.URL.Query().Get("run"); id != "" {
		return storage.Run{ID: id}, nil
	}
	return store.LatestRun(r.Context())
}

func handleListCurated(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := runFor(r, deps.Store)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no curated run yet")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load run: %v", err)
			return
		}

		limit := parseIntParam(r, "limit", ranking.DefaultFinalN, 200)
		offset := parseIntParam(r, "offset", 0, 0)
		items, err := deps.Store.ListItems(r.Context(), run.ID, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list items: %v", err)
			return
		}
		if items == nil {
			items = []ranking.Item{}
		}
		writeJSON(w, http.StatusOK, CuratedResponse{Run: run, Items: items})
	}
}

func handleGetCurated(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rank, err := strconv.Atoi(chi.URLParam(r, "rank"))
		if err != nil || rank < 1 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "rank must be a positive integer")
			return
		}
		run, err := runFor(r, deps.Store)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no curated run yet")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load run: %v", err)
			return
		}

		item, err := deps.Store.GetItem(r.Context(), run.ID, rank)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no item at rank %d", rank)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get item: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
