package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/specialistvlad/observedseq/internal/broadcast"
	"github.com/specialistvlad/observedseq/internal/index"
	"github.com/specialistvlad/observedseq/internal/lazy"
	"github.com/specialistvlad/observedseq/internal/sqlwatch"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	var frame broadcast.Frame
	err := s.deps.Runner.Do(r.Context(), func() (err error) {
		frame, err = s.deps.Reader.Frame()
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

func (s *Server) handleRow(w http.ResponseWriter, r *http.Request) {
	p, err := index.Parse(chi.URLParam(r, "path"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var raw json.RawMessage
	err = s.deps.Runner.Do(r.Context(), func() (err error) {
		raw, err = s.deps.Reader.Value(p)
		return err
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	values, ok := decodeValues(w, r)
	if !ok {
		return
	}
	err := s.deps.Runner.Do(r.Context(), func() error {
		return s.deps.Store.Insert(r.Context(), values)
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	values, ok := decodeValues(w, r)
	if !ok {
		return
	}
	err := s.deps.Runner.Do(r.Context(), func() error {
		return s.deps.Store.Update(r.Context(), key, values)
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	err := s.deps.Runner.Do(r.Context(), func() error {
		return s.deps.Store.Delete(r.Context(), key)
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeValues reads a JSON object of column values. Numbers are kept
// integral where possible so they bind as SQLite integers.
func decodeValues(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	for k, v := range values {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			values[k] = i
		} else if f, err := n.Float64(); err == nil {
			values[k] = f
		}
	}
	return values, true
}

// respondError maps domain errors to status codes and logs the rest.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, sqlwatch.ErrNotFound), errors.Is(err, lazy.ErrOutOfRange):
		status = http.StatusNotFound
	case errors.Is(err, sqlwatch.ErrInvalidQuery):
		status = http.StatusBadRequest
	case errors.Is(err, sqlwatch.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request error", "path", r.URL.Path, "method", r.Method, "error", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
