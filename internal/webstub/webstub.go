// Package webstub exposes the query surface over HTTP, binding
// bind_address and enforcing request_timeout exactly as spec.md §6
// requires, without implementing any of the out-of-scope web UI
// (routing/rendering, syntax highlighting, markdown, tarballs, patch
// export, smart-HTTP CGI pass-through all remain external collaborators).
package webstub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vcsindex/barehub/internal/query"
)

// Server is the minimal JSON surface over a query.Surface.
type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

// New builds a Server bound to addr, enforcing timeout on every request.
func New(addr string, timeout time.Duration, q *query.Surface, log *zap.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	h := &handler{query: q, log: log}
	r.Get("/repositories", h.listRepositories)
	r.Get("/repositories/{path}/commits", h.listCommits)
	r.Get("/repositories/{path}/tags", h.listTags)
	r.Get("/repositories/{path}/tree/{indexedTreeID}", h.listTreeItems)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: timeout,
			WriteTimeout:      timeout * 2,
		},
		log: log,
	}
}

// Handler returns the underlying http.Handler, for tests that want to drive
// it with httptest rather than binding a real listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving HTTP until the server is shut down, the
// same contract http.Server.ListenAndServe offers, except that a normal
// shutdown returns nil instead of http.ErrServerClosed.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type handler struct {
	query *query.Surface
	log   *zap.Logger
}

func (h *handler) listRepositories(w http.ResponseWriter, r *http.Request) {
	entries, err := h.query.FetchAllRepositories()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, entries)
}

func (h *handler) listCommits(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "path")
	rec, ok, err := h.query.OpenRepository(path)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	ref := r.URL.Query().Get("ref")
	if ref == "" {
		if rec.DefaultBranch == nil {
			http.Error(w, "repository has no default branch and no ref was given", http.StatusBadRequest)
			return
		}
		ref = *rec.DefaultBranch
	}
	amount := queryUint(r, "amount", 50)
	offset := queryUint(r, "offset", 0)

	commits, err := h.query.CommitTree(rec.ID, ref).FetchLatest(amount, offset)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, commits)
}

func (h *handler) listTags(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "path")
	rec, ok, err := h.query.OpenRepository(path)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	tags, err := h.query.TagTree(rec.ID).FetchAll()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, tags)
}

func (h *handler) listTreeItems(w http.ResponseWriter, r *http.Request) {
	indexedTreeID, err := strconv.ParseUint(chi.URLParam(r, "indexedTreeID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid indexedTreeID", http.StatusBadRequest)
		return
	}
	var dir *string
	if r.URL.Query().Has("dir") {
		d := r.URL.Query().Get("dir")
		dir = &d
	}
	items, err := h.query.TreeItemFindPrefix(indexedTreeID, dir)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, items)
}

func (h *handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("failed to write response body", zap.Error(err))
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, err error) {
	h.log.Error("request failed", zap.Int("status", status), zap.Error(err))
	http.Error(w, err.Error(), status)
}

func queryUint(r *http.Request, name string, def uint64) uint64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}
