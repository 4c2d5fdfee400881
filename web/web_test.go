package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerServesConsole(t *testing.T) {
	h, err := Handler()
	require.NoError(t, err)

	tests := []struct {
		path        string
		contentType string
		contains    string
	}{
		{"/", "text/html", "steamrelay console"},
		{"/console.js", "javascript", "getActiveSessions"},
		{"/accounts/alice", "text/html", "steamrelay console"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), tt.contentType)
			assert.Contains(t, rec.Body.String(), tt.contains)
		})
	}
}
