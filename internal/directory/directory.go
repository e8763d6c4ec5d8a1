// Package directory caches the active tenant set so poll ticks never
// wait on tenant store reads. The cache is refreshed on its own timer
// and swapped atomically; tick readers see either the old or the new
// set, never a partial one.
package directory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tridentbot/erlc-ingest/internal/registry"
)

const DefaultRefreshInterval = 2 * time.Minute

// Tenant is the cached projection of an active tenant record.
type Tenant struct {
	GuildID   string
	ServerKey string
}

// Directory holds the in-memory active tenant working set.
type Directory struct {
	reg      registry.Client
	interval time.Duration

	mu      sync.RWMutex
	tenants []Tenant
}

// New creates a Directory refreshing from reg every interval
// (DefaultRefreshInterval when non-positive). The cache starts empty;
// call Refresh or Run before the first poll pass.
func New(reg registry.Client, interval time.Duration) *Directory {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Directory{reg: reg, interval: interval}
}

// Refresh reads the active tenant set from the store and atomically
// replaces the cached copy.
func (d *Directory) Refresh(ctx context.Context) error {
	records, err := d.reg.FindActive(ctx)
	if err != nil {
		return err
	}
	tenants := make([]Tenant, 0, len(records))
	for _, r := range records {
		tenants = append(tenants, Tenant{GuildID: r.GuildID, ServerKey: r.ServerKey})
	}
	d.mu.Lock()
	d.tenants = tenants
	d.mu.Unlock()
	return nil
}

// Run refreshes immediately, then on a ticker until ctx is cancelled.
// A failed refresh keeps the previous set; a stale working set beats an
// empty one.
func (d *Directory) Run(ctx context.Context) {
	slog.Info("directory: starting refresh loop", "interval", d.interval)

	if err := d.Refresh(ctx); err != nil {
		slog.Error("directory: initial refresh failed", "err", err)
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("directory: shutting down")
			return
		case <-ticker.C:
			if err := d.Refresh(ctx); err != nil {
				slog.Error("directory: refresh failed", "err", err)
			}
		}
	}
}

// Snapshot returns the current working set. The returned slice is
// shared and must not be mutated; replacement happens only by swap.
func (d *Directory) Snapshot() []Tenant {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tenants
}

// Remove drops a tenant from the working set immediately, without
// waiting for the next refresh. Used when a tenant is deactivated
// mid-cycle so no further tick processes it.
func (d *Directory) Remove(guildID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	tenants := make([]Tenant, 0, len(d.tenants))
	for _, t := range d.tenants {
		if t.GuildID != guildID {
			tenants = append(tenants, t)
		}
	}
	d.tenants = tenants
}

// Len reports the cached tenant count.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.tenants)
}
