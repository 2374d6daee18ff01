package response

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvelopes(t *testing.T) {
	tests := []struct {
		name       string
		write      func(http.ResponseWriter)
		wantStatus int
		wantBody   string
	}{
		{"ok", func(w http.ResponseWriter) { OK(w, map[string]int{"n": 1}) }, http.StatusOK, `{"success":true,"data":{"n":1}}`},
		{"ok message", func(w http.ResponseWriter) { OKMessage(w, "File removed", nil) }, http.StatusOK, `{"success":true,"message":"File removed"}`},
		{"created", func(w http.ResponseWriter) { Created(w, []string{}) }, http.StatusCreated, `{"success":true,"data":[]}`},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "nope") }, http.StatusBadRequest, `{"success":false,"error":"nope"}`},
		{"unavailable", func(w http.ResponseWriter) { Unavailable(w, "later") }, http.StatusServiceUnavailable, `{"success":false,"error":"later"}`},
		{"internal", InternalError, http.StatusInternalServerError, `{"success":false,"error":"internal server error"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}
