package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

// Recorder wraps httptest.ResponseRecorder with assertion helpers.
type Recorder struct {
	*httptest.ResponseRecorder
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{httptest.NewRecorder()}
}

// AssertStatus fails the test when the response code differs.
func (r *Recorder) AssertStatus(t testing.TB, want int) {
	t.Helper()
	if r.Code != want {
		t.Errorf("status code: got %d, want %d (body %q)", r.Code, want, r.Body.String())
	}
}

// AssertContains fails the test when the body lacks want.
func (r *Recorder) AssertContains(t testing.TB, want string) {
	t.Helper()
	if !strings.Contains(r.Body.String(), want) {
		t.Errorf("response body does not contain %q", want)
	}
}

// DecodeJSON unmarshals the body into dst or fails the test.
func (r *Recorder) DecodeJSON(t testing.TB, dst any) {
	t.Helper()
	if err := json.Unmarshal(r.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response body %q: %v", r.Body.String(), err)
	}
}
