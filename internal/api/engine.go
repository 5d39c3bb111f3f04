package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andy-broyles/matfree.app/internal/binding"
	"github.com/andy-broyles/matfree.app/internal/outcome"
)

// variableResponse is the JSON response for GET and PUT /v1/variables/{name}.
type variableResponse struct {
	Name    string        `json:"name"`
	Value   binding.Value `json:"value"`
	Rows    int           `json:"rows"`
	Cols    int           `json:"cols"`
	Display string        `json:"display"`
}

func newVariableResponse(name string, v binding.Value) variableResponse {
	rows, cols := v.Dims()
	return variableResponse{
		Name:    name,
		Value:   v,
		Rows:    rows,
		Cols:    cols,
		Display: v.String(),
	}
}

// setVariableRequest is the JSON body for PUT /v1/variables/{name}. Value is
// a number, a string, null (empty), a row of numbers or a list of rows.
type setVariableRequest struct {
	Value json.RawMessage `json:"value"`
}

func (s *Server) handleGetEngine(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.dispatcher.Backend().Capabilities())
}

func (s *Server) handleGetVariable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	v, err := s.dispatcher.Get(r.Context(), name)
	if err != nil {
		s.writeVariableError(w, err, http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, newVariableResponse(name, v))
}

func (s *Server) handleSetVariable(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var body setVariableRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(body.Value) == 0 {
		s.writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	v, err := decodeValue(body.Value)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.dispatcher.Set(r.Context(), name, v); err != nil {
		s.writeVariableError(w, err, http.StatusUnprocessableEntity)
		return
	}
	s.writeJSON(w, http.StatusOK, newVariableResponse(name, v))
}

// writeVariableError maps a workspace failure to a status. Engine-side
// failures (an undefined name, a rejected assignment) use fallback.
func (s *Server) writeVariableError(w http.ResponseWriter, err error, fallback int) {
	switch {
	case errors.Is(err, outcome.ErrUnsupported):
		s.writeError(w, http.StatusNotImplemented, err.Error())
	case errors.Is(err, outcome.ErrCanceled):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeError(w, fallback, err.Error())
	}
}

// decodeValue converts a plain JSON value into an engine value.
func decodeValue(raw json.RawMessage) (binding.Value, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case bytes.Equal(raw, []byte("null")):
		return binding.Empty(), nil
	case raw[0] == '"':
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return binding.Value{}, fmt.Errorf("invalid string value: %w", err)
		}
		return binding.String(text), nil
	case raw[0] == '[':
		var rows [][]float64
		if err := json.Unmarshal(raw, &rows); err == nil {
			if len(rows) == 0 {
				return binding.Empty(), nil
			}
			return binding.Matrix(rows)
		}
		var row []float64
		if err := json.Unmarshal(raw, &row); err != nil {
			return binding.Value{}, errors.New("matrix values must be numbers or rows of numbers")
		}
		if len(row) == 0 {
			return binding.Empty(), nil
		}
		return binding.Matrix([][]float64{row})
	default:
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			return binding.Value{}, errors.New("value must be a number, string, null or matrix")
		}
		return binding.Scalar(f), nil
	}
}
