// Package httpapi exposes the single-shot ask flow over HTTP, so
// editors and scripts can query workspaces without the CLI.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"bctx/internal/query"
	"bctx/internal/registry"
	"bctx/internal/session"
)

// Asker is the slice of the orchestrator the API needs.
type Asker interface {
	Ask(ctx context.Context, repoNames []string, question string) (string, error)
}

// Handler serves the ask endpoint.
type Handler struct {
	asker Asker
	Logf  func(format string, args ...any)
}

func NewHandler(asker Asker) *Handler {
	return &Handler{asker: asker}
}

func (h *Handler) logf(format string, args ...any) {
	if h.Logf != nil {
		h.Logf(format, args...)
	}
}

type askRequest struct {
	Repos    []string `json:"repos"`
	Question string   `json:"question"`
	// Tech is the legacy single-repository field; merged into Repos.
	Tech string `json:"tech"`
}

type askResponse struct {
	Workspace string `json:"workspace"`
	Answer    string `json:"answer"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Mux returns the routed handler.
func (h *Handler) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ask", h.handleAsk)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse request: %w", err))
		return
	}

	names := req.Repos
	if strings.TrimSpace(req.Tech) != "" {
		names = append(names, req.Tech)
	}
	// mentions in the question body count too
	parsed := query.Parse(req.Question)
	names = query.Merge(names, parsed.Repos)

	if len(names) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no repositories given: set repos, tech, or @mentions in question"))
		return
	}
	if strings.TrimSpace(parsed.Prompt) == "" {
		writeError(w, http.StatusBadRequest, errors.New("question is empty"))
		return
	}

	started := time.Now()
	answer, err := h.asker.Ask(r.Context(), names, parsed.Prompt)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	key, _ := query.WorkspaceKey(names)
	h.logf("answered %s in %s", key, time.Since(started).Round(time.Millisecond))
	writeJSON(w, http.StatusOK, askResponse{Workspace: key, Answer: answer})
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	var (
		notFound  *registry.NotFoundError
		invalid   *session.InvalidProviderError
		notConn   *session.NotConnectedError
		badModel  *session.InvalidModelError
		exhausted *session.PortsExhaustedError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &invalid), errors.As(err, &notConn), errors.As(err, &badModel):
		return http.StatusConflict
	case errors.As(err, &exhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// Serve runs the API until ctx ends.
func Serve(ctx context.Context, addr string, h *Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
