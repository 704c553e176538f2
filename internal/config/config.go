// Package config resolves server settings from a .env file, the process
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Server holds mapdraw-server settings.
type Server struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	SnapshotPath string
	RedisAddr    string
	RedisPass    string
	RedisDB      int
	RedisKey     string
	SaveDebounce time.Duration
	LoadOnStart  bool

	FeedURL  string
	MapStyle string

	// TraceExporter is "stdout" or "otlp"; empty or "none" disables tracing.
	TraceExporter string
	TraceEndpoint string
	TraceRatio    float64
}

// Defaults returns the built-in settings.
func Defaults() Server {
	return Server{
		HTTPAddr:     ":8080",
		GRPCAddr:     ":50051",
		MetricsAddr:  ":9090",
		SnapshotPath: "data/snapshot.json",
		RedisKey:     "mapdraw:snapshot",
		SaveDebounce: 2 * time.Second,
		LoadOnStart:  true,
		MapStyle:     "streets",
		TraceRatio:   1,
	}
}

// LoadDotEnv loads each existing file into the environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

// LoadServer reads .env, then the environment, then args.
func LoadServer(args []string) (Server, error) {
	LoadDotEnv(".env")
	cfg := Defaults()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Server{}, err
	}

	fs := flag.NewFlagSet("mapdraw-server", flag.ContinueOnError)
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP address for the operator surface and REST endpoints")
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "TCP address the feed gRPC server listens on (empty disables)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "HTTP address for Prometheus /metrics (empty disables)")
	fs.StringVar(&cfg.SnapshotPath, "snapshot", cfg.SnapshotPath, "Path of the JSON snapshot file")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address; when set snapshots are stored in redis instead of a file")
	fs.StringVar(&cfg.RedisKey, "redis-key", cfg.RedisKey, "Redis key holding the snapshot")
	fs.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database number")
	fs.DurationVar(&cfg.SaveDebounce, "save-debounce", cfg.SaveDebounce, "Settle time after a layer change before autosaving")
	fs.BoolVar(&cfg.LoadOnStart, "load", cfg.LoadOnStart, "Restore the saved snapshot on start")
	fs.StringVar(&cfg.FeedURL, "feed-url", cfg.FeedURL, "Websocket URL of a live network feed (empty disables)")
	fs.StringVar(&cfg.MapStyle, "map-style", cfg.MapStyle, "Initial base map style identifier")
	fs.StringVar(&cfg.TraceExporter, "trace-exporter", cfg.TraceExporter, "Span exporter: stdout or otlp (empty disables tracing)")
	fs.StringVar(&cfg.TraceEndpoint, "trace-endpoint", cfg.TraceEndpoint, "OTLP gRPC collector endpoint")
	fs.Float64Var(&cfg.TraceRatio, "trace-ratio", cfg.TraceRatio, "Fraction of root spans sampled")
	if err := fs.Parse(args); err != nil {
		return Server{}, err
	}
	if cfg.TraceRatio < 0 || cfg.TraceRatio > 1 {
		return Server{}, fmt.Errorf("trace ratio %v outside [0, 1]", cfg.TraceRatio)
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Server) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("MAPDRAW_HTTP_ADDR", &c.HTTPAddr)
	str("MAPDRAW_GRPC_ADDR", &c.GRPCAddr)
	str("MAPDRAW_METRICS_ADDR", &c.MetricsAddr)
	str("MAPDRAW_SNAPSHOT_PATH", &c.SnapshotPath)
	str("MAPDRAW_REDIS_ADDR", &c.RedisAddr)
	str("MAPDRAW_REDIS_PASSWORD", &c.RedisPass)
	str("MAPDRAW_REDIS_KEY", &c.RedisKey)
	str("MAPDRAW_FEED_URL", &c.FeedURL)
	str("MAPDRAW_MAP_STYLE", &c.MapStyle)
	str("MAPDRAW_TRACE_EXPORTER", &c.TraceExporter)
	str("MAPDRAW_TRACE_ENDPOINT", &c.TraceEndpoint)

	if v, ok := lookup("MAPDRAW_REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAPDRAW_REDIS_DB: %w", err)
		}
		c.RedisDB = n
	}
	if v, ok := lookup("MAPDRAW_SAVE_DEBOUNCE"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MAPDRAW_SAVE_DEBOUNCE: %w", err)
		}
		c.SaveDebounce = d
	}
	if v, ok := lookup("MAPDRAW_TRACE_RATIO"); ok && v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MAPDRAW_TRACE_RATIO: %w", err)
		}
		c.TraceRatio = r
	}
	if v, ok := lookup("MAPDRAW_LOAD_ON_START"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MAPDRAW_LOAD_ON_START: %w", err)
		}
		c.LoadOnStart = b
	}
	return nil
}

// FeedSim holds feed-sim settings.
type FeedSim struct {
	GRPCTarget string
	WSAddr     string
	TLEPath    string
	Tick       time.Duration
	Interval   time.Duration
	Start      time.Time
}

// LoadFeedSim reads .env, then MAPDRAW_FEEDSIM_* variables, then args.
func LoadFeedSim(args []string) (FeedSim, error) {
	LoadDotEnv(".env")
	cfg := FeedSim{
		GRPCTarget: "localhost:50051",
		Tick:       10 * time.Second,
		Interval:   time.Second,
	}
	if v, ok := os.LookupEnv("MAPDRAW_FEEDSIM_GRPC_TARGET"); ok {
		cfg.GRPCTarget = v
	}
	if v, ok := os.LookupEnv("MAPDRAW_FEEDSIM_WS_ADDR"); ok {
		cfg.WSAddr = v
	}
	if v, ok := os.LookupEnv("MAPDRAW_FEEDSIM_TLE"); ok {
		cfg.TLEPath = v
	}

	start := ""
	fs := flag.NewFlagSet("feed-sim", flag.ContinueOnError)
	fs.StringVar(&cfg.GRPCTarget, "grpc-target", cfg.GRPCTarget, "mapdraw-server feed gRPC target (empty disables pushing)")
	fs.StringVar(&cfg.WSAddr, "ws-addr", cfg.WSAddr, "HTTP address serving the feed over websocket at /feed (empty disables)")
	fs.StringVar(&cfg.TLEPath, "tle", cfg.TLEPath, "TLE file; the built-in constellation is used when empty")
	fs.DurationVar(&cfg.Tick, "tick", cfg.Tick, "Simulated time step per update")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Wall-clock time between updates")
	fs.StringVar(&start, "start", "", "Simulation start time (RFC3339); now when empty")
	if err := fs.Parse(args); err != nil {
		return FeedSim{}, err
	}
	if cfg.Tick <= 0 || cfg.Interval <= 0 {
		return FeedSim{}, fmt.Errorf("tick and interval must be positive")
	}
	if start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return FeedSim{}, fmt.Errorf("start: %w", err)
		}
		cfg.Start = t
	}
	return cfg, nil
}
