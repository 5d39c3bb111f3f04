package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andy-broyles/matfree.app/internal/backend"
	"github.com/andy-broyles/matfree.app/internal/binding"
)

func TestGetEngineNative(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/engine")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var caps backend.Capabilities
	if err := json.NewDecoder(resp.Body).Decode(&caps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if caps.Strategy != "native" {
		t.Errorf("strategy = %q, want native", caps.Strategy)
	}
	if caps.Binding != "stub" {
		t.Errorf("binding = %q, want stub", caps.Binding)
	}
	if caps.Executable != "/nonexistent/matfree" {
		t.Errorf("executable = %q", caps.Executable)
	}
}

func TestGetVariable(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/variables/x")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body variableResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Value.Kind != binding.KindScalar || body.Value.Scalar != 3 {
		t.Errorf("value = %+v, want scalar 3", body.Value)
	}
	if body.Display != "3" {
		t.Errorf("display = %q, want 3", body.Display)
	}
	if body.Rows != 1 || body.Cols != 1 {
		t.Errorf("dims = %dx%d, want 1x1", body.Rows, body.Cols)
	}
}

func TestGetVariableUndefined(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/variables/nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetVariableUnsupportedUnderSubprocess(t *testing.T) {
	srv := newSubprocessTestServer(t, "/nonexistent/matfree")
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/variables/x")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", resp.StatusCode)
	}
}

func putJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT %s: %v", url, err)
	}
	return resp
}

func TestSetVariable(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name    string
		body    string
		kind    binding.ValueKind
		rows    int
		cols    int
		display string
	}{
		{"scalar", `{"value": 2.5}`, binding.KindScalar, 1, 1, "2.5"},
		{"string", `{"value": "hello"}`, binding.KindString, 1, 5, "hello"},
		{"row", `{"value": [1, 2, 3]}`, binding.KindMatrix, 1, 3, "1   2   3"},
		{"matrix", `{"value": [[1, 2], [3, 4]]}`, binding.KindMatrix, 2, 2, "1   2\n3   4"},
		{"empty", `{"value": null}`, binding.KindEmpty, 0, 0, "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := putJSON(t, ts.URL+"/v1/variables/v", tt.body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("PUT status = %d, want 200", resp.StatusCode)
			}

			// The assignment is visible to a later read.
			got, err := http.Get(ts.URL + "/v1/variables/v")
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer got.Body.Close()

			var body variableResponse
			if err := json.NewDecoder(got.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Value.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", body.Value.Kind, tt.kind)
			}
			if body.Rows != tt.rows || body.Cols != tt.cols {
				t.Errorf("dims = %dx%d, want %dx%d", body.Rows, body.Cols, tt.rows, tt.cols)
			}
			if body.Display != tt.display {
				t.Errorf("display = %q, want %q", body.Display, tt.display)
			}
		})
	}
}

func TestSetVariableBadRequests(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, body := range []string{
		`not json`,
		`{}`,
		`{"value": true}`,
		`{"value": {"a": 1}}`,
		`{"value": [[1, 2], [3]]}`,
		`{"value": ["a", "b"]}`,
	} {
		resp := putJSON(t, ts.URL+"/v1/variables/v", body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("PUT %s: status = %d, want 400", body, resp.StatusCode)
		}
	}
}

func TestSetVariableRejectedByEngine(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := putJSON(t, ts.URL+"/v1/variables/pi", `{"value": 3}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestSetVariableUnsupportedUnderSubprocess(t *testing.T) {
	srv := newSubprocessTestServer(t, "/nonexistent/matfree")
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := putJSON(t, ts.URL+"/v1/variables/x", `{"value": 1}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", resp.StatusCode)
	}
}
