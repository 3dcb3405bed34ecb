// Package app wires the ripple server runtime: config, logging, HTTP routes,
// the realtime gateway, and the background sweepers.
//
// It is intentionally small and deterministic to keep behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ripple/cmd/internal/admin"
	"ripple/cmd/internal/delivery"
	"ripple/cmd/internal/directory"
	"ripple/cmd/internal/events"
	"ripple/cmd/internal/metrics"
	"ripple/cmd/internal/presence"
	"ripple/cmd/internal/realtime"
	"ripple/cmd/internal/revocation"
	"ripple/cmd/internal/session"
	"ripple/cmd/internal/typing"
)

// App is the ripple server runtime: it owns HTTP wiring and the realtime
// component graph.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	met      *metrics.Metrics
	bus      *events.Bus
	registry *session.Registry
	tracker  *presence.Tracker
	revStore revocation.Store
	revoker  *revocation.Service
	router   *delivery.Router
	relay    *typing.Relay
	scopes   *realtime.ScopeTable
	gateway  *realtime.Gateway
	fanout   *realtime.PresenceFanout
	admin    *admin.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	met := metrics.New()
	bus := events.NewBus(log)

	registry := session.NewRegistry(log, cfg.SessionCap, met)
	tracker := presence.NewTracker(log, registry, bus, cfg.PresenceDebounce, met)
	registry.SetObserver(tracker)

	var (
		dbPool    *pgxpool.Pool
		dbEnabled bool
		revStore  revocation.Store
		dir       directory.Directory
		receipts  directory.ReceiptWriter
	)

	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_stores")
		revStore = revocation.NewMemoryStore()

		mem := directory.NewMemoryDirectory()
		for convID, members := range parseDevConversations(cfg.DevConversations) {
			mem.SetMembers(convID, members...)
		}
		dir, receipts = mem, mem
	} else {
		pool, err := NewDBPool(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		log.Info("db.enabled.postgres_stores")

		pgRev, err := revocation.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pgDir, err := directory.NewPostgresDirectory(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}

		dbPool, dbEnabled = pool, true
		revStore = pgRev
		dir, receipts = pgDir, pgDir
	}

	guard := revocation.NewGuard(log, revStore, cfg.RevocationFailOpen)
	revoker := revocation.NewService(log, revStore, registry, met,
		revocation.WithExpirySource(dir),
		revocation.WithRetentionCap(cfg.RevocationRetentionCap),
	)

	scopes := realtime.NewScopeTable(log)
	router := delivery.NewRouter(log, registry, bus, met,
		delivery.WithDispatchTimeout(cfg.DispatchTimeout),
		delivery.WithRetention(cfg.DeliveryRetention),
		delivery.WithReceiptWriter(receipts),
	)
	relay := typing.NewRelay(log, scopes, bus, met, cfg.TypingExpiry)

	gateway := realtime.NewGateway(log, realtime.Deps{
		Registry:     registry,
		Guard:        guard,
		Revoker:      revoker,
		Router:       router,
		Relay:        relay,
		Scopes:       scopes,
		Directory:    dir,
		RetentionCap: cfg.RevocationRetentionCap,
	})

	return &App{
		cfg:       cfg,
		log:       log,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		met:       met,
		bus:       bus,
		registry:  registry,
		tracker:   tracker,
		revStore:  revStore,
		revoker:   revoker,
		router:    router,
		relay:     relay,
		scopes:    scopes,
		gateway:   gateway,
		fanout:    realtime.NewPresenceFanout(log, bus, dir, scopes),
		admin:     admin.NewHandler(log, registry, tracker, revoker, router, scopes),
	}, nil
}

// Run starts the HTTP server and background loops, blocking until context
// cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.fanout.Run(runCtx)
	go a.sweep(runCtx)

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.gateway, a.admin, a.met.Handler())

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(WithSecurityHeaders(mux), a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.tracker.Close()
	a.relay.Close()
	if a.dbPool != nil {
		a.dbPool.Close()
	}

	a.log.Info("server.stopped")
	return nil
}

// sweep runs the periodic cleanup loop: session expiry, revocation
// compaction, and receipt retention.
func (a *App) sweep(ctx context.Context) {
	t := time.NewTicker(nonZeroDuration(a.cfg.SweepInterval, time.Minute))
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			now := time.Now().UTC()

			if n := a.registry.SweepExpired(now); n > 0 {
				a.log.Info("sweep.sessions", "expired", n)
			}
			if n, err := a.revStore.Sweep(ctx, now); err != nil {
				a.log.Warn("sweep.revocations.fail", "err", err)
			} else if n > 0 {
				a.log.Info("sweep.revocations", "compacted", n)
			}
			if n := a.router.Sweep(now); n > 0 {
				a.log.Info("sweep.receipts", "reclaimed", n)
			}
		}
	}
}

// parseDevConversations parses "conv:alice,bob;other:bob,carol" into a
// membership map. Malformed segments are skipped.
func parseDevConversations(s string) map[string][]string {
	out := make(map[string][]string)
	for _, seg := range strings.Split(s, ";") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		convID, rest, ok := strings.Cut(seg, ":")
		convID = strings.TrimSpace(convID)
		if !ok || convID == "" {
			continue
		}
		var members []string
		for _, m := range strings.Split(rest, ",") {
			if m = strings.TrimSpace(m); m != "" {
				members = append(members, m)
			}
		}
		if len(members) > 0 {
			out[convID] = members
		}
	}
	return out
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
