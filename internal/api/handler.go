// Package api is the poller's ops surface: tenant management and
// poller introspection. It is not on the data path; the poller runs
// fine if this server never receives a request.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tridentbot/erlc-ingest/internal/directory"
	"github.com/tridentbot/erlc-ingest/internal/poller"
	"github.com/tridentbot/erlc-ingest/internal/registry"
)

// Handler is the ops HTTP handler
type Handler struct {
	reg registry.Client
	dir *directory.Directory
	p   *poller.Poller
}

func New(reg registry.Client, dir *directory.Directory, p *poller.Poller) *Handler {
	return &Handler{reg: reg, dir: dir, p: p}
}

// Router returns the chi router with all routes registered
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", h.Healthz)
	r.Get("/stats", h.Stats)
	r.Get("/tenants", h.ListTenants)
	r.Post("/tenants", h.CreateTenant)
	r.Delete("/tenants/{guildID}", h.DeactivateTenant)

	return r
}

// Healthz returns 200 OK
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// Stats returns cumulative poller counters and the cached tenant count
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	out := struct {
		poller.Stats
		CachedTenants int `json:"cached_tenants"`
	}{
		Stats:         h.p.Stats(),
		CachedTenants: h.dir.Len(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// tenantView is a TenantRecord with the server key redacted
type tenantView struct {
	GuildID            string    `json:"guild_id"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
	DeactivatedAt      time.Time `json:"deactivated_at,omitempty"`
	DeactivationReason string    `json:"deactivation_reason,omitempty"`
}

func redact(rec *registry.TenantRecord) tenantView {
	return tenantView{
		GuildID:            rec.GuildID,
		Active:             rec.Active,
		CreatedAt:          rec.CreatedAt,
		DeactivatedAt:      rec.DeactivatedAt,
		DeactivationReason: rec.DeactivationReason,
	}
}

// ListTenants returns all tenant records with server keys redacted
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	records, err := h.reg.ListAll(r.Context())
	if err != nil {
		slog.Error("list tenants failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	views := make([]tenantView, 0, len(records))
	for _, rec := range records {
		views = append(views, redact(rec))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// CreateTenant registers a new tenant. The tenant is picked up by the
// poller at the next directory refresh.
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GuildID   string `json:"guild_id"`
		ServerKey string `json:"server_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.GuildID == "" || req.ServerKey == "" {
		http.Error(w, "guild_id and server_key required", http.StatusBadRequest)
		return
	}
	rec := &registry.TenantRecord{
		GuildID:   req.GuildID,
		ServerKey: req.ServerKey,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.reg.CreateTenant(r.Context(), rec); err != nil {
		slog.Error("create tenant failed", "guild", req.GuildID, "err", err)
		http.Error(w, "conflict", http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(redact(rec))
}

// DeactivateTenant flips a tenant inactive and drops it from the
// in-memory working set immediately
func (h *Handler) DeactivateTenant(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	if err := h.reg.Deactivate(r.Context(), guildID, "deactivated via ops api"); err != nil {
		slog.Error("deactivate tenant failed", "guild", guildID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	h.dir.Remove(guildID)
	w.WriteHeader(http.StatusNoContent)
}
