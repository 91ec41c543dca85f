package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/michaelbrown/runbox/internal/executor"
	"github.com/michaelbrown/runbox/internal/storage"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- Execution ---

// execute runs code under the in-flight limit and records it when history
// is enabled. A timeout of zero keeps the executor's own policy.
func (s *Server) execute(ctx context.Context, source storage.Source, code string, timeout time.Duration) (executor.Result, string, error) {
	id := uuid.New().String()

	runCtx, release, err := s.runs.Begin(ctx, id)
	if err != nil {
		return executor.Result{}, "", err
	}
	defer release()

	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}

	res := s.runner.Run(runCtx, code)

	if s.store != nil {
		rec := storage.NewExecution(source, code, res)
		rec.ID = id
		if err := s.store.SaveExecution(context.WithoutCancel(ctx), rec); err != nil {
			s.log.Error().Err(err).Str("id", id).Msg("saving execution")
		}
	}

	return res, id, nil
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

type executeRequest struct {
	Code      *string `json:"code" validate:"required"`
	Language  string  `json:"language" validate:"omitempty,oneof=go"`
	TimeoutMS int     `json:"timeout_ms" validate:"gte=0"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	res, id, err := s.execute(r.Context(), storage.SourceHTTP, *req.Code, msToDuration(req.TimeoutMS))
	if err != nil {
		if errors.Is(err, ErrBusy) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	if s.store != nil {
		w.Header().Set("X-Execution-ID", id)
	}
	writeJSON(w, http.StatusOK, res)
}

// --- History ---

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "execution history is disabled")
		return false
	}
	return true
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	q := r.URL.Query()
	opts := storage.ListOptions{
		Status: executor.Status(q.Get("status")),
		Source: storage.Source(q.Get("source")),
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}

	execs, err := s.store.ListExecutions(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if execs == nil {
		execs = []storage.Execution{}
	}
	writeJSON(w, http.StatusOK, execs)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	exec, err := s.store.GetExecution(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleDeleteExecution(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}

	if err := s.store.DeleteExecution(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}
