package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type overrides struct {
	Granted []string `json:"granted"`
	Revoked []string `json:"revoked"`
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"granted":["samples.view"],"revoked":[]}`, false},
		{"malformed", `{"granted":`, true},
		{"unknown field", `{"granted":[],"extra":1}`, true},
		{"empty body", ``, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(tt.body))
			var dest overrides
			err := ParseJSON(req, &dest)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, []string{"samples.view"}, dest.Granted)
		})
	}
}

func TestParseJSONOrError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`nope`))
	w := httptest.NewRecorder()
	var dest overrides

	assert.False(t, ParseJSONOrError(w, req, &dest))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParsePathString(t *testing.T) {
	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/samples/s-1", nil), map[string]string{"id": "s-1"})

	id, err := ParsePathString(req, "id")
	require.NoError(t, err)
	assert.Equal(t, "s-1", id)

	_, err = ParsePathString(req, "missing")
	assert.Error(t, err)

	w := httptest.NewRecorder()
	_, ok := ParsePathStringOrError(w, req, "missing")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestParseQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&path=/samples&bad=x", nil)

	limit, err := ParseQueryInt(req, "limit", 50)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)

	limit, err = ParseQueryInt(req, "absent", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, limit)

	_, err = ParseQueryInt(req, "bad", 0)
	assert.Error(t, err)

	assert.Equal(t, "/samples", ParseQueryString(req, "path", "/"))
	assert.Equal(t, "/", ParseQueryString(req, "absent", "/"))
}
