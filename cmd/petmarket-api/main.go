// README: Entry point; loads config, wires stores and services, starts the HTTP server and the dispatch ticker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"petmarket/internal/clock"
	"petmarket/internal/config"
	httptransport "petmarket/internal/http"
	"petmarket/internal/infra"
	"petmarket/internal/logger"
	"petmarket/internal/modules/dispatch"
	"petmarket/internal/modules/order"
	"petmarket/internal/modules/staff"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	log := logger.New("petmarket-api", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("exit", "error", err)
		os.Exit(1)
	}
}

type stores struct {
	orders   order.Repository
	roster   staff.Directory
	seeder   staff.RosterWriter
	requests dispatch.Repository
	tracker  dispatch.CandidateTracker
	checks   map[string]httptransport.HealthCheck
	closers  []func()
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		for i := len(st.closers) - 1; i >= 0; i-- {
			st.closers[i]()
		}
	}()

	if cfg.SeedFile != "" {
		if err := seedRoster(ctx, st.seeder, cfg.SeedFile, log); err != nil {
			return err
		}
	}

	verifier, notifier, err := openAuth(ctx, cfg, log)
	if err != nil {
		return err
	}

	var publisher order.Publisher = infra.NopPublisher{}
	if cfg.AMQP.URL != "" {
		p, err := infra.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return err
		}
		st.closers = append(st.closers, p.Close)
		st.checks["rabbitmq"] = func(context.Context) error { return p.Ping() }
		publisher = p
		log.Info("amqp_connected", "exchange", cfg.AMQP.Exchange)
	}

	clk := clock.Real{}
	resolver := staff.NewResolver(st.roster, st.orders, cfg.Schedule.Location, clk, log)
	orderSvc := order.NewService(st.orders, resolver,
		order.WithPublisher(publisher),
		order.WithClock(clk),
		order.WithLogger(log),
	)
	dispatchOpts := []dispatch.Option{
		dispatch.WithPublisher(publisher),
		dispatch.WithClock(clk),
		dispatch.WithLogger(log),
		dispatch.WithTracker(st.tracker),
	}
	if notifier != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithNotifier(notifier))
	}
	coordinator := dispatch.NewCoordinator(st.requests, orderSvc, resolver, cfg.Dispatch, dispatchOpts...)
	orderSvc.SetDispatcher(coordinator)

	api := httptransport.NewServer(httptransport.ServerDeps{
		Order:         orderSvc,
		Resolver:      resolver,
		Dispatch:      coordinator,
		Verifier:      verifier,
		Schedule:      cfg.Schedule,
		RatePerSecond: cfg.RateLimit.PerSecond,
		RateBurst:     cfg.RateLimit.Burst,
		Checks:        st.checks,
		Clock:         clk,
		Logger:        log,
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go coordinator.RunExpiryTicker(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("http_listening", "addr", cfg.HTTP.Addr, "storage", cfg.Storage, "dispatch_mode", cfg.Dispatch.Mode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (*stores, error) {
	st := &stores{checks: map[string]httptransport.HealthCheck{}}
	if cfg.Storage == "memory" {
		roster := staff.NewMemoryStore()
		st.orders = order.NewMemoryStore()
		st.roster = roster
		st.seeder = roster
		st.requests = dispatch.NewMemoryStore()
		st.tracker = dispatch.NewMemoryTracker()
		log.Warn("memory_storage", "detail", "state is lost on restart")
		return st, nil
	}

	pool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, pool.Close)
	st.checks["postgres"] = pool.Ping

	rdb, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		pool.Close()
		return nil, err
	}
	st.closers = append(st.closers, func() { _ = rdb.Close() })
	st.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

	roster := staff.NewStore(pool)
	st.orders = order.NewStore(pool)
	st.roster = roster
	st.seeder = roster
	st.requests = dispatch.NewStore(pool)
	st.tracker = dispatch.NewRedisTracker(rdb)
	return st, nil
}

// openAuth builds the token verifier. Firebase mode also provides the FCM
// notifier for delivery offers; jwt mode sends no pushes.
func openAuth(ctx context.Context, cfg config.Config, log *slog.Logger) (infra.TokenVerifier, dispatch.Notifier, error) {
	if cfg.Auth.Mode == "jwt" {
		v, err := infra.NewJWTVerifier(cfg.Auth.JWTSecret)
		return v, nil, err
	}
	app, err := infra.NewFirebaseApp(ctx, cfg.Auth.ProjectID, cfg.Auth.CredentialsFile)
	if err != nil {
		return nil, nil, err
	}
	verifier, err := infra.NewFirebaseVerifier(ctx, app)
	if err != nil {
		return nil, nil, err
	}
	msg, err := infra.NewMessaging(ctx, app)
	if err != nil {
		log.Warn("fcm_unavailable", "error", err)
		return verifier, nil, nil
	}
	return verifier, dispatch.NewFCMNotifier(msg), nil
}

func seedRoster(ctx context.Context, w staff.RosterWriter, path string, log *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	n, err := staff.LoadRoster(ctx, w, f)
	if err != nil {
		return fmt.Errorf("seed roster from %s: %w", path, err)
	}
	log.Info("roster_seeded", "file", path, "members", n)
	return nil
}
