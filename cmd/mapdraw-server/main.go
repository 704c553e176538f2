package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/mapdraw/internal/config"
	"github.com/signalsfoundry/mapdraw/internal/feed"
	"github.com/signalsfoundry/mapdraw/internal/logging"
	"github.com/signalsfoundry/mapdraw/internal/observability"
	"github.com/signalsfoundry/mapdraw/internal/persist"
	"github.com/signalsfoundry/mapdraw/internal/surface"
	"github.com/signalsfoundry/mapdraw/internal/workspace"
)

func main() {
	cfg, err := config.LoadServer(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Exporter:    cfg.TraceExporter,
		Endpoint:    cfg.TraceEndpoint,
		ServiceName: "mapdraw-server",
		SampleRatio: cfg.TraceRatio,
	}, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer tracing.Shutdown(context.Background())

	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for HTTP", logging.String("addr", cfg.HTTPAddr), logging.Err(err))
		os.Exit(1)
	}
	var grpcLis net.Listener
	if cfg.GRPCAddr != "" {
		grpcLis, err = net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCAddr), logging.Err(err))
			os.Exit(1)
		}
	}

	if err := run(ctx, cfg, log, httpLis, grpcLis); err != nil {
		log.Error(ctx, "mapdraw server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves until ctx is cancelled or a listener fails. grpcLis may be
// nil to disable feed ingest over gRPC.
func run(ctx context.Context, cfg config.Server, log logging.Logger, httpLis, grpcLis net.Listener) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := observability.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}
	persistMetrics, err := observability.NewPersistCollector(reg)
	if err != nil {
		return fmt.Errorf("persistence metrics: %w", err)
	}

	ws := workspace.New(
		workspace.WithLogger(log),
		workspace.WithMetrics(collector),
		workspace.WithMapStyle(cfg.MapStyle),
	)

	store, closeStore := openStore(ctx, cfg, log)
	defer closeStore()
	saver := persist.NewAutoSaver(store, ws.Snapshot, cfg.SaveDebounce,
		persist.WithLogger(log),
		persist.WithMetrics(persistMetrics),
	)
	if cfg.LoadOnStart {
		restore(ctx, ws, saver, log)
	}
	ws.AttachSaver(saver)

	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)

	surf := surface.New(ws,
		surface.WithLogger(log),
		surface.WithPersistence(saver),
		surface.WithSessionMetrics(collector),
		surface.WithMetricsHandler(collector.Handler()),
	)
	httpSrv := &http.Server{
		Handler:           surf.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	log.Info(ctx, "starting operator surface", logging.String("addr", httpLis.Addr().String()))
	go func() {
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcSrv *grpc.Server
	if grpcLis != nil {
		grpcSrv = feed.NewGRPCServer(ws, collector, log)
		log.Info(ctx, "starting feed gRPC server", logging.String("addr", grpcLis.Addr().String()))
		go func() {
			if err := grpcSrv.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	feedCtx, cancelFeed := context.WithCancel(ctx)
	defer cancelFeed()
	if cfg.FeedURL != "" {
		src := &feed.WSSource{URL: cfg.FeedURL, Sink: ws, Log: log}
		go func() { _ = src.Run(feedCtx) }()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Info(context.Background(), "shutting down mapdraw server")
	cancelFeed()
	surf.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := saver.Stop(shutdownCtx, true); err != nil {
		log.Warn(shutdownCtx, "final snapshot save failed", logging.Err(err))
	}
	return runErr
}

// openStore picks redis when an address is configured, then the snapshot
// file, then an in-process store.
func openStore(ctx context.Context, cfg config.Server, log logging.Logger) (persist.Store, func()) {
	switch {
	case cfg.RedisAddr != "":
		client := persist.OpenRedis(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		log.Info(ctx, "using redis snapshot store",
			logging.String("addr", cfg.RedisAddr),
			logging.String("key", cfg.RedisKey),
		)
		return persist.NewRedisStore(client, cfg.RedisKey), func() { _ = client.Close() }
	case cfg.SnapshotPath != "":
		log.Info(ctx, "using file snapshot store", logging.String("path", cfg.SnapshotPath))
		return persist.NewFileStore(cfg.SnapshotPath), func() {}
	default:
		log.Warn(ctx, "no snapshot store configured; state is kept in memory only")
		return persist.NewMemoryStore(), func() {}
	}
}

func restore(ctx context.Context, ws *workspace.Workspace, saver *persist.AutoSaver, log logging.Logger) {
	snap, err := saver.Load(ctx)
	switch {
	case errors.Is(err, persist.ErrNoSnapshot):
		log.Info(ctx, "no saved snapshot; starting empty")
		return
	case err != nil:
		log.Warn(ctx, "skipping snapshot restore", logging.Err(err))
		return
	}
	if err := ws.LoadSnapshot(ctx, snap); err != nil {
		log.Warn(ctx, "saved snapshot rejected", logging.Err(err))
	}
}

func serveMetrics(addr string, collector *observability.Collector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
