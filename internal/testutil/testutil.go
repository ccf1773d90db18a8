// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers and synthetic telemetry so
// packages exercise the engine against the same tracks.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// ServeRequest sends one body-less request for target through h and returns
// the recorded response.
func ServeRequest(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

// AssertStatusCode checks that the recorded status matches want, reporting
// the body on mismatch.
func AssertStatusCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Errorf("status code = %d, want %d (body %q)", rec.Code, want, rec.Body.String())
	}
}

// DecodeJSON unmarshals the recorded body into v and stops the test when it
// is not valid JSON.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
