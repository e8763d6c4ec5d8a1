package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tridentbot/erlc-ingest/internal/api"
	"github.com/tridentbot/erlc-ingest/internal/directory"
	"github.com/tridentbot/erlc-ingest/internal/poller"
	"github.com/tridentbot/erlc-ingest/internal/registry"
	"github.com/tridentbot/erlc-ingest/internal/snapshot"
)

func newTestHandler(t *testing.T) (*registry.MockClient, *directory.Directory, http.Handler) {
	t.Helper()
	reg := registry.NewMock()
	dir := directory.New(reg, time.Minute)
	w := snapshot.NewWriter(snapshot.NewMemorySink(), "", nil)
	p := poller.New(reg, dir, w, nil, nil, poller.Options{})
	return reg, dir, api.New(reg, dir, p).Router()
}

func TestHealthz(t *testing.T) {
	_, _, router := newTestHandler(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateAndListTenants_KeysRedacted(t *testing.T) {
	_, _, router := newTestHandler(t)

	body := `{"guild_id":"g1","server_key":"super-secret"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tenants", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "super-secret")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "super-secret")

	var views []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "g1", views[0]["guild_id"])
	assert.Equal(t, true, views[0]["active"])
}

func TestCreateTenant_Validation(t *testing.T) {
	_, _, router := newTestHandler(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tenants", strings.NewReader(`{"guild_id":"g1"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tenants", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTenant_Duplicate(t *testing.T) {
	_, _, router := newTestHandler(t)
	body := `{"guild_id":"dup","server_key":"k"}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tenants", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tenants", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeactivateTenant_RemovesFromDirectory(t *testing.T) {
	reg, dir, router := newTestHandler(t)
	ctx := context.Background()
	require.NoError(t, reg.CreateTenant(ctx, &registry.TenantRecord{
		GuildID: "g1", ServerKey: "k", Active: true, CreatedAt: time.Now(),
	}))
	require.NoError(t, dir.Refresh(ctx))
	require.Equal(t, 1, dir.Len())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/tenants/g1", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	got, err := reg.GetTenant(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, 0, dir.Len())
}

func TestStats(t *testing.T) {
	_, _, router := newTestHandler(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Contains(t, out, "passes")
	assert.Contains(t, out, "rows_written")
	assert.Contains(t, out, "cached_tenants")
}
