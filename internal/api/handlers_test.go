package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/peerlog/peerlog/internal/cache"
	"github.com/peerlog/peerlog/internal/coordinator"
	"github.com/peerlog/peerlog/internal/gossip"
	"github.com/peerlog/peerlog/internal/keystore"
	"github.com/peerlog/peerlog/internal/objectstore"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := objectstore.NewMemStore()
	bus := gossip.NewHTTPBus("test-node", nil)
	deps := coordinator.Deps{
		Store:  store,
		Bus:    bus,
		Keys:   keystore.NewStore(),
		Cache:  cache.NewMapCache(),
		SelfID: "test-node",
	}
	h := NewHandler(store, bus, deps)
	r := gin.New()
	h.Register(r)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestPutAndGetObject(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/objects", bytes.NewBufferString("hello world"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var putResp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &putResp))
	cidStr := putResp["cid"]
	require.NotEmpty(t, cidStr)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/objects/"+cidStr, nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "hello world", w.Body.String())
}

func TestGetObjectMissingReturnsNotFound(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/objects/bafkqaaa", nil))
	require.NotEqual(t, http.StatusOK, w.Code)
}

func TestOpenAddListEntries(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/databases", map[string]any{
		"address": "mydb",
		"create":  true,
		"type":    "eventlog",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var openResp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &openResp))
	addr, _ := openResp["address"].(string)
	require.NotEmpty(t, addr)

	w = doJSON(t, r, http.MethodPost, "/databases/"+addr+"/entries", map[string]any{
		"payload": []byte("entry-one"),
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/databases/"+addr+"/entries?limit=-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var listResp struct {
		Entries []map[string]any `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	require.Len(t, listResp.Entries, 1)
}

func TestAddEntryOnUnopenedDatabaseReturnsNotFound(t *testing.T) {
	r := newTestRouter(t)
	w := doJSON(t, r, http.MethodPost, "/databases/never-opened/entries", map[string]any{
		"payload": []byte("x"),
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}
