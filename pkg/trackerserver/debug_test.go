package trackerserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/happyfish100/fastdfs-sub006/pkg/cluster"
)

func TestDebugHandlerServesClusterSnapshot(t *testing.T) {
	st := cluster.New(nil)
	_, err := st.AddStorage("group1", "10.0.0.1", "10.0.0.1")
	require.NoError(t, err)

	h := &DebugHandler{Store: st}
	req := httptest.NewRequest(http.MethodGet, "/debug/cluster", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var groups []groupSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &groups))
	require.Len(t, groups, 1)
	assert.Equal(t, "group1", groups[0].Name)
	require.Len(t, groups[0].Storages, 1)
	assert.Equal(t, "10.0.0.1", groups[0].Storages[0].ID)
}

func TestDebugHandlerDeniesUnlistedHost(t *testing.T) {
	st := cluster.New(nil)
	h := &DebugHandler{Store: st, Allow: NewAllowList([]string{"10.0.0.0/24"})}

	req := httptest.NewRequest(http.MethodGet, "/debug/cluster", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDebugHandlerUnknownPath(t *testing.T) {
	st := cluster.New(nil)
	h := &DebugHandler{Store: st}

	req := httptest.NewRequest(http.MethodGet, "/debug/nope", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
