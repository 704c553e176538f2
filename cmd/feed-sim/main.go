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

	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/mapdraw/internal/config"
	"github.com/signalsfoundry/mapdraw/internal/feed"
	"github.com/signalsfoundry/mapdraw/internal/feedsim"
	"github.com/signalsfoundry/mapdraw/internal/logging"
	"github.com/signalsfoundry/mapdraw/timectrl"
)

func main() {
	cfg, err := config.LoadFeedSim(os.Args[1:])
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

	var wsLis net.Listener
	if cfg.WSAddr != "" {
		wsLis, err = net.Listen("tcp", cfg.WSAddr)
		if err != nil {
			log.Error(ctx, "failed to listen for feed subscribers", logging.String("addr", cfg.WSAddr), logging.Err(err))
			os.Exit(1)
		}
	}

	if err := run(ctx, cfg, log, wsLis); err != nil && !errors.Is(err, context.Canceled) {
		log.Error(ctx, "feed simulator exited", logging.Err(err))
		os.Exit(1)
	}
}

func loadConstellation(path string) ([]feedsim.TLE, error) {
	if path == "" {
		return feedsim.DefaultConstellation, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return feedsim.ParseTLE(f)
}

// run publishes one simulated snapshot per tick until ctx is cancelled.
func run(ctx context.Context, cfg config.FeedSim, log logging.Logger, wsLis net.Listener) error {
	tles, err := loadConstellation(cfg.TLEPath)
	if err != nil {
		return fmt.Errorf("load constellation: %w", err)
	}
	sim, err := feedsim.New(tles, feedsim.DefaultGroundStations)
	if err != nil {
		return err
	}

	var client *feed.Client
	if cfg.GRPCTarget != "" {
		conn, err := feed.Dial(cfg.GRPCTarget)
		if err != nil {
			return fmt.Errorf("dial %s: %w", cfg.GRPCTarget, err)
		}
		defer conn.Close()
		client = feed.NewClient(conn)
	}

	var hub *feed.Hub
	if wsLis != nil {
		hub = feed.NewHub(log)
		mux := http.NewServeMux()
		mux.Handle("/feed", hub)
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.Serve(wsLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn(ctx, "feed subscriber server exited", logging.Err(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info(ctx, "serving feed over websocket", logging.String("addr", wsLis.Addr().String()))
	}

	if client == nil && hub == nil {
		return errors.New("nothing to publish to: set a gRPC target or a websocket address")
	}

	start := cfg.Start
	if start.IsZero() {
		start = time.Now().UTC()
	}
	tc := timectrl.NewTimeController(start, cfg.Tick, timectrl.Accelerated)
	tc.Interval = cfg.Interval

	publish := func(simTime time.Time) {
		snapshot := sim.Snapshot(simTime)
		payload, err := feed.Encode(snapshot)
		if err != nil {
			log.Warn(ctx, "failed to encode snapshot", logging.Err(err))
			return
		}
		if hub != nil {
			hub.Publish(payload)
		}
		if client != nil {
			pushCtx, cancel := context.WithTimeout(ctx, cfg.Interval)
			err := client.PushRaw(pushCtx, payload)
			cancel()
			if err != nil && ctx.Err() == nil {
				log.Warn(ctx, "feed push failed", logging.Err(err), logging.String("code", status.Code(err).String()))
				return
			}
		}
		log.Debug(ctx, "feed published",
			logging.String("sim_time", simTime.Format(time.RFC3339)),
			logging.Int("nodes", len(snapshot)),
		)
	}
	tc.AddListener(publish)

	log.Info(ctx, "starting feed simulator",
		logging.Int("nodes", sim.Len()),
		logging.Duration("tick", cfg.Tick),
		logging.Duration("interval", cfg.Interval),
		logging.String("mode", tc.Mode.String()),
	)
	publish(start)
	return tc.Run(ctx)
}
