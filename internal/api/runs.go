package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/andy-broyles/matfree.app/internal/model"
	"github.com/andy-broyles/matfree.app/internal/runner"
	"github.com/andy-broyles/matfree.app/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// createRunRequest is the JSON body for POST /v1/runs and /v1/runs/async.
type createRunRequest struct {
	Operation string `json:"operation"`
	Code      string `json:"code"`
	Path      string `json:"path"`
}

// listRunsResponse wraps the paginated list response.
type listRunsResponse struct {
	Runs   []*model.Run `json:"runs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// decodeRunRequest reads and validates a run request body. Only bounded
// operations can be run over HTTP; sessions need a terminal.
func (s *Server) decodeRunRequest(w http.ResponseWriter, r *http.Request) (model.Request, bool) {
	var body createRunRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return model.Request{}, false
	}

	op := model.Operation(body.Operation)
	if op == "" {
		op = model.OpEvaluate
	}

	var req model.Request
	switch op {
	case model.OpEvaluate:
		req = model.EvaluateText(body.Code)
	case model.OpRunFile:
		req = model.RunFile(body.Path)
	case model.OpVersion:
		req = model.Version()
	default:
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("operation %q cannot be run over HTTP", op))
		return model.Request{}, false
	}

	if err := req.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return model.Request{}, false
	}
	return req, true
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRunRequest(w, r)
	if !ok {
		return
	}

	run, err := s.runner.Execute(r.Context(), model.NewRun(req))
	if err != nil {
		s.logger.Error("execute run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to execute run")
		return
	}

	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleAsyncRun(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRunRequest(w, r)
	if !ok {
		return
	}

	run := model.NewRun(req)
	if err := s.runner.Submit(r.Context(), run); err != nil {
		s.logger.Error("submit async run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit run")
		return
	}

	s.writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, total, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	if runs == nil {
		runs = []*model.Run{}
	}

	s.writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// handleCancelRun cancels an in-flight run. The run moves to killed once the
// engine call has stopped, so the response may still show it running.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}

	// The stored status trails the runner, so ask the runner what is in flight.
	if !s.runner.Active(run.ID) {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("run is not active (status %s)", s.settledStatus(r, run)))
		return
	}
	if err := s.runner.Cancel(run.ID); err != nil {
		if errors.Is(err, runner.ErrNotActive) {
			s.writeError(w, http.StatusConflict, fmt.Sprintf("run is not active (status %s)", s.settledStatus(r, run)))
			return
		}
		s.logger.Error("cancel run", "run_id", run.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to cancel run")
		return
	}

	s.writeJSON(w, http.StatusAccepted, run)
}

// settledStatus re-reads a run that just left the runner, so the reported
// status is its final one rather than the one loaded before the check.
func (s *Server) settledStatus(r *http.Request, run *model.Run) string {
	if latest, err := s.store.GetRun(r.Context(), run.ID); err == nil {
		return latest.Status
	}
	return run.Status
}

// lookupRun loads the run named by the {id} URL parameter, writing the error
// response itself when that fails.
func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (*model.Run, bool) {
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("get run", "run_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return nil, false
	}
	return run, true
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
