// Package poller drives the per-tenant gate-and-fanout pipeline on a
// fixed tick. Each pass admits tenants through a global semaphore,
// probes server status, and only fans out to the nine secondary routes
// when the probe reports live players. Every call outcome becomes
// exactly one snapshot row.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tridentbot/erlc-ingest/internal/directory"
	"github.com/tridentbot/erlc-ingest/internal/limiter"
	"github.com/tridentbot/erlc-ingest/internal/lock"
	"github.com/tridentbot/erlc-ingest/internal/prc"
	"github.com/tridentbot/erlc-ingest/internal/registry"
	"github.com/tridentbot/erlc-ingest/internal/retry"
	"github.com/tridentbot/erlc-ingest/internal/snapshot"
)

// Diagnostic route names recorded on failure rows.
const (
	RouteAuthError     = "authError"
	RouteInternalError = "internalError"
)

// Options configures the poller. Zero values fall back to the defaults
// below.
type Options struct {
	TickInterval            time.Duration // time between passes
	GlobalMaxConcurrency    int           // tenants in flight across one process
	PerTenantMaxConcurrency int           // secondary calls in flight per tenant pass
	MaxRetries              int
	BackoffBase             time.Duration
	// PassLockTTL bounds a redis pass lock when a Locker is configured.
	PassLockTTL time.Duration
}

const (
	DefaultTickInterval            = 15 * time.Second
	DefaultGlobalMaxConcurrency    = 10
	DefaultPerTenantMaxConcurrency = 3
	DefaultPassLockTTL             = 4 * time.Minute
)

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.GlobalMaxConcurrency <= 0 {
		o.GlobalMaxConcurrency = DefaultGlobalMaxConcurrency
	}
	if o.PerTenantMaxConcurrency <= 0 {
		o.PerTenantMaxConcurrency = DefaultPerTenantMaxConcurrency
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = retry.DefaultMaxRetries
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = retry.DefaultBackoffBase
	}
	if o.PassLockTTL <= 0 {
		o.PassLockTTL = DefaultPassLockTTL
	}
	return o
}

// ClientFactory builds the remote API client for one tenant.
type ClientFactory func(guildID, serverKey string) *prc.Client

// Stats are cumulative poller counters, exposed via the ops API.
type Stats struct {
	Passes         uint64 `json:"passes"`
	TenantPasses   uint64 `json:"tenant_passes"`
	RowsWritten    uint64 `json:"rows_written"`
	AuthFailures   uint64 `json:"auth_failures"`
	InsertFailures uint64 `json:"insert_failures"`
	InternalErrors uint64 `json:"internal_errors"`
	SkippedLocked  uint64 `json:"skipped_locked"`
}

type counters struct {
	passes         atomic.Uint64
	tenantPasses   atomic.Uint64
	rowsWritten    atomic.Uint64
	authFailures   atomic.Uint64
	insertFailures atomic.Uint64
	internalErrors atomic.Uint64
	skippedLocked  atomic.Uint64
}

type cachedClient struct {
	serverKey string
	client    *prc.Client
}

// Poller owns the tick loop and the per-tenant pipeline.
type Poller struct {
	reg       registry.Client
	dir       *directory.Directory
	writer    *snapshot.Writer
	locker    lock.Locker // nil: overlapping passes tolerated
	opts      Options
	exec      retry.Executor
	globalSem *limiter.Semaphore
	newClient ClientFactory
	logger    *slog.Logger

	clientMu sync.Mutex
	clients  map[string]cachedClient

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	counters counters
}

// New wires a Poller. locker may be nil (overlap-tolerant mode);
// factory may be nil to use the production PRC client with the given
// global key.
func New(reg registry.Client, dir *directory.Directory, writer *snapshot.Writer, locker lock.Locker, factory ClientFactory, opts Options) *Poller {
	opts = opts.withDefaults()
	if factory == nil {
		factory = func(_, serverKey string) *prc.Client {
			return prc.NewClient(prc.Config{ServerKey: serverKey})
		}
	}
	return &Poller{
		reg:       reg,
		dir:       dir,
		writer:    writer,
		locker:    locker,
		opts:      opts,
		exec:      retry.New(opts.MaxRetries, opts.BackoffBase),
		globalSem: limiter.New(opts.GlobalMaxConcurrency),
		newClient: factory,
		logger:    slog.Default(),
		clients:   make(map[string]cachedClient),
	}
}

// Stats returns a snapshot of the cumulative counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Passes:         p.counters.passes.Load(),
		TenantPasses:   p.counters.tenantPasses.Load(),
		RowsWritten:    p.counters.rowsWritten.Load(),
		AuthFailures:   p.counters.authFailures.Load(),
		InsertFailures: p.counters.insertFailures.Load(),
		InternalErrors: p.counters.internalErrors.Load(),
		SkippedLocked:  p.counters.skippedLocked.Load(),
	}
}

// Start launches the tick loop: one immediate pass, then one per
// TickInterval. Idempotent. The tenant directory refresh loop runs
// separately (directory.Run); Start does not manage it.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		p.logger.Info("poller: starting",
			"tick", p.opts.TickInterval,
			"global_max", p.opts.GlobalMaxConcurrency,
			"per_tenant_max", p.opts.PerTenantMaxConcurrency)

		// in-flight work survives Stop; only the timers die
		passCtx := context.WithoutCancel(loopCtx)

		p.runPass(passCtx)

		ticker := time.NewTicker(p.opts.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				p.logger.Info("poller: shutting down")
				return
			case <-ticker.C:
				// passes slower than the tick overlap; the global
				// semaphore bounds aggregate load
				go p.runPass(passCtx)
			}
		}
	}()
}

// Stop halts the tick loop. In-flight passes run to completion or to
// their own retry exhaustion; they are not cancelled.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// runPass processes every cached tenant once.
func (p *Poller) runPass(ctx context.Context) {
	p.counters.passes.Add(1)
	tenants := p.dir.Snapshot()
	var wg sync.WaitGroup
	for _, t := range tenants {
		wg.Add(1)
		go func(t directory.Tenant) {
			defer wg.Done()
			p.pollTenant(ctx, t)
		}(t)
	}
	wg.Wait()
}

// pollTenant runs the gate-and-fanout pipeline for one tenant. No error
// escapes: every outcome ends as snapshot rows, a deactivation, or a
// logged diagnostic, never a crash of the orchestrator.
func (p *Poller) pollTenant(ctx context.Context, t directory.Tenant) {
	if p.locker != nil {
		ok, err := p.locker.AcquirePassLock(ctx, t.GuildID, p.opts.PassLockTTL)
		if err != nil {
			p.logger.Error("poller: pass lock acquire failed", "guild", t.GuildID, "err", err)
		} else if !ok {
			p.counters.skippedLocked.Add(1)
			return
		} else {
			defer func() {
				if err := p.locker.ReleasePassLock(ctx, t.GuildID); err != nil {
					p.logger.Error("poller: pass lock release failed", "guild", t.GuildID, "err", err)
				}
			}()
		}
	}

	if err := p.globalSem.Acquire(ctx); err != nil {
		return
	}
	defer p.globalSem.Release()
	p.counters.tenantPasses.Add(1)

	defer func() {
		if r := recover(); r != nil {
			p.counters.internalErrors.Add(1)
			p.logger.Error("poller: pipeline panic", "guild", t.GuildID, "panic", fmt.Sprintf("%v", r))
			p.writer.WriteBestEffort(ctx, t.GuildID, t.ServerKey, []snapshot.Outcome{{
				Route:   RouteInternalError,
				OK:      false,
				Payload: map[string]any{"error": fmt.Sprintf("%v", r)},
			}})
		}
	}()

	client := p.clientFor(t.GuildID, t.ServerKey)

	// Gate
	gatePayload, gateErr := p.exec.Do(ctx, func(ctx context.Context) (any, error) {
		return client.ServerStatus(ctx)
	})
	if gateErr != nil {
		if prc.IsAuthError(gateErr) {
			p.handleAuthFailure(ctx, t, gateErr)
			return
		}
		p.writeRows(ctx, t, []snapshot.Outcome{{
			Route:   prc.RouteServerStatus,
			OK:      false,
			Payload: gateErr.Error(),
		}})
		return
	}

	// The gate row is persisted before any fanout row
	p.writeRows(ctx, t, []snapshot.Outcome{{
		Route:   prc.RouteServerStatus,
		OK:      true,
		Payload: gatePayload,
	}})

	if prc.CurrentPlayers(gatePayload) <= 0 {
		// idle session: nine extra calls per tick buy nothing
		return
	}

	p.writeRows(ctx, t, p.fanout(ctx, client))
}

// fanout issues the nine secondary calls concurrently under a fresh
// per-tenant semaphore. Every call yields an outcome; one failing route
// never aborts the others.
func (p *Poller) fanout(ctx context.Context, client *prc.Client) []snapshot.Outcome {
	perTenant := limiter.New(p.opts.PerTenantMaxConcurrency)
	outcomes := make([]snapshot.Outcome, len(prc.SecondaryRoutes))
	var wg sync.WaitGroup
	for i, route := range prc.SecondaryRoutes {
		wg.Add(1)
		go func(i int, route prc.Route) {
			defer wg.Done()
			if err := perTenant.Acquire(ctx); err != nil {
				outcomes[i] = snapshot.Outcome{Route: route.Name, OK: false, Payload: err.Error()}
				return
			}
			defer perTenant.Release()

			payload, err := p.exec.Do(ctx, func(ctx context.Context) (any, error) {
				return route.Fetch(client, ctx)
			})
			if err != nil {
				outcomes[i] = snapshot.Outcome{Route: route.Name, OK: false, Payload: err.Error()}
				return
			}
			outcomes[i] = snapshot.Outcome{Route: route.Name, OK: true, Payload: payload}
		}(i, route)
	}
	wg.Wait()
	return outcomes
}

// handleAuthFailure performs the one-way deactivation: the tenant
// leaves the in-memory working set immediately, the store is updated,
// and one diagnostic row documents the failure. Reactivation requires
// external intervention with a fresh credential.
func (p *Poller) handleAuthFailure(ctx context.Context, t directory.Tenant, authErr error) {
	p.counters.authFailures.Add(1)
	p.logger.Warn("poller: auth failure, deactivating tenant", "guild", t.GuildID, "err", authErr)

	p.dir.Remove(t.GuildID)
	if err := p.reg.Deactivate(ctx, t.GuildID, authErr.Error()); err != nil {
		p.logger.Error("poller: deactivate failed", "guild", t.GuildID, "err", err)
	}

	p.clientMu.Lock()
	delete(p.clients, t.GuildID)
	p.clientMu.Unlock()

	p.writeRows(ctx, t, []snapshot.Outcome{{
		Route:   RouteAuthError,
		OK:      false,
		Payload: map[string]any{"error": authErr.Error()},
	}})
}

func (p *Poller) writeRows(ctx context.Context, t directory.Tenant, outcomes []snapshot.Outcome) {
	if err := p.writer.Write(ctx, t.GuildID, t.ServerKey, outcomes); err != nil {
		p.counters.insertFailures.Add(1)
		p.logger.Error("poller: snapshot write failed", "guild", t.GuildID, "rows", len(outcomes), "err", err)
		return
	}
	p.counters.rowsWritten.Add(uint64(len(outcomes)))
}

// clientFor returns the cached API client for a tenant, rebuilding it
// if the server key rotated since the last pass.
func (p *Poller) clientFor(guildID, serverKey string) *prc.Client {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()
	if c, ok := p.clients[guildID]; ok && c.serverKey == serverKey {
		return c.client
	}
	client := p.newClient(guildID, serverKey)
	p.clients[guildID] = cachedClient{serverKey: serverKey, client: client}
	return client
}
