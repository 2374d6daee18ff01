package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radif/dropzone/internal/queue"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestRouter(t *testing.T) (http.Handler, *Service) {
	t.Helper()
	svc := newTestService(t, newFlakyStore())
	h := NewHandler(svc, queue.Limits{MaxFiles: 2, MaxSize: 1024}, "uploads")
	return h.Routes(), svc
}

func do(t *testing.T, h http.Handler, req *http.Request) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func multipartRequest(t *testing.T, target string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, body := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandlerStatusUnknownNamespace(t *testing.T) {
	h, _ := newTestRouter(t)
	code, env := do(t, h, httptest.NewRequest(http.MethodGet, "/public", nil))
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
}

func TestHandlerUploadFlow(t *testing.T) {
	h, _ := newTestRouter(t)

	code, env := do(t, h, httptest.NewRequest(http.MethodPost, "/public/ensure", nil))
	require.Equal(t, http.StatusOK, code, env.Error)
	var st NamespaceStatus
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, StateReady, st.State)

	code, env = do(t, h, httptest.NewRequest(http.MethodGet, "/public", nil))
	assert.Equal(t, http.StatusOK, code)

	code, env = do(t, h, multipartRequest(t, "/public/objects?folder=docs", map[string]string{
		"a.txt":   "hello",
		"big.bin": strings.Repeat("x", 2048),
	}))
	require.Equal(t, http.StatusOK, code, env.Error)

	var up struct {
		Uploaded []Record       `json:"uploaded"`
		Failed   []Failure      `json:"failed"`
		Rejected []rejectedFile `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &up))
	require.Len(t, up.Uploaded, 1)
	assert.Empty(t, up.Failed)
	require.Len(t, up.Rejected, 1)
	assert.Equal(t, "File big.bin is too large. Maximum size is 0.0009765625MB.", up.Rejected[0].Error)
	assert.True(t, strings.HasPrefix(up.Uploaded[0].Path, "docs/"))

	code, env = do(t, h, httptest.NewRequest(http.MethodGet, "/public/objects?folder=docs", nil))
	require.Equal(t, http.StatusOK, code)
	var objs []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &objs))
	assert.Len(t, objs, 1)

	code, env = do(t, h, httptest.NewRequest(http.MethodGet, "/public/records", nil))
	require.Equal(t, http.StatusOK, code)
	var recs []Record
	require.NoError(t, json.Unmarshal(env.Data, &recs))
	assert.Len(t, recs, 1)

	code, env = do(t, h, httptest.NewRequest(http.MethodDelete, "/public/objects/"+up.Uploaded[0].Path, nil))
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Equal(t, "File removed", env.Message)

	code, env = do(t, h, httptest.NewRequest(http.MethodGet, "/public/objects?folder=docs", nil))
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestHandlerUploadNotReady(t *testing.T) {
	h, _ := newTestRouter(t)
	code, env := do(t, h, multipartRequest(t, "/public/objects", map[string]string{"a.txt": "a"}))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "Storage is not ready yet. Please wait a moment and try again.", env.Error)
}

func TestHandlerUploadTooManyFiles(t *testing.T) {
	h, svc := newTestRouter(t)
	_, err := svc.EnsureNamespace(context.Background(), "public")
	require.NoError(t, err)

	code, env := do(t, h, multipartRequest(t, "/public/objects", map[string]string{
		"a.txt": "a", "b.txt": "b", "c.txt": "c",
	}))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "You can only upload a maximum of 2 files.", env.Error)

	recs, err := svc.Records(context.Background(), "public")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestHandlerListMissingNamespace(t *testing.T) {
	h, _ := newTestRouter(t)
	code, _ := do(t, h, httptest.NewRequest(http.MethodGet, "/nowhere/objects", nil))
	assert.Equal(t, http.StatusNotFound, code)
}
