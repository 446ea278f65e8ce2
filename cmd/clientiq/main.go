package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/harperhq/clientiq/pkg/docsearch"
	"github.com/harperhq/clientiq/pkg/memory"
	"github.com/harperhq/clientiq/pkg/metrics"
	"github.com/harperhq/clientiq/pkg/pipeline"
	"github.com/harperhq/clientiq/pkg/postgres"
	"github.com/harperhq/clientiq/pkg/router"
	"github.com/harperhq/clientiq/pkg/server"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultListenAddr  = ":8080"
	defaultMetricsAddr = ":9090"
	defaultModel       = string(anthropic.ModelClaude3_5Haiku20241022)
	defaultCompanyID   = 29447
	defaultMaxTokens   = 4096
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.ShowVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(cfg.Verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Start prometheus metrics server
	if cfg.MetricsAddr != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", cfg.MetricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				os.Exit(1)
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			http.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, nil); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				os.Exit(1)
			}
		}()
	}

	db, err := postgres.NewClient(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	llm := pipeline.NewAnthropicLLMClient(anthropic.Model(cfg.Model), int64(cfg.MaxTokens))

	cache := pipeline.NewResultCache(uint64(cfg.CacheCapacity), cfg.CacheTTL)
	defer cache.Stop()

	executor, err := pipeline.New(&pipeline.Config{
		Logger:     log,
		LLM:        llm,
		Querier:    db,
		Cache:      cache,
		MaxRetries: cfg.MaxRetries,
		NLGEnabled: cfg.NLGEnabled,
		NLGMaxRows: cfg.NLGMaxRows,
	})
	if err != nil {
		return fmt.Errorf("failed to create executor: %w", err)
	}

	docs := docsearch.NewAgent(docsearch.NewPostgresStore(db.Pool()), llm, log)

	sessions := memory.NewStore(cfg.MemoryWindow, cfg.SessionTTL)
	defer sessions.Stop()

	orchestrator, err := router.NewOrchestrator(router.OrchestratorConfig{
		Logger:   log,
		LLM:      llm,
		Executor: executor,
		Docs:     docs,
		Memory:   sessions,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	srv := server.New(server.Config{
		Logger:           log,
		Orchestrator:     orchestrator,
		Executor:         executor,
		DefaultCompanyID: cfg.DefaultCompanyID,
		AllowedOrigins:   cfg.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	go func() {
		log.Info("API server starting", "address", cfg.ListenAddr, "model", cfg.Model)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info("server stopped")
	return nil
}

type Config struct {
	ShowVersion bool
	Verbose     bool
	MetricsAddr string
	ListenAddr  string

	DatabaseURL      string
	Model            string
	MaxTokens        int
	MaxRetries       int
	MemoryWindow     int
	NLGEnabled       bool
	NLGMaxRows       int
	CacheCapacity    int
	CacheTTL         time.Duration
	SessionTTL       time.Duration
	DefaultCompanyID int64
	AllowedOrigins   []string
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
func getenvBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
func getenvInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return i, nil
}
func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return d, nil
}
func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func loadConfig() (Config, error) {
	var cfg Config
	var originsCSV string

	flag.BoolVar(&cfg.ShowVersion, "version", false, "show version and exit")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "verbose mode - show debug logs")

	flag.StringVar(&cfg.ListenAddr, "listen-addr", getenv("LISTEN_ADDR", defaultListenAddr), "address to listen on for the API (env: LISTEN_ADDR)")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getenv("METRICS_ADDR", defaultMetricsAddr), "address to listen on for prometheus metrics (env: METRICS_ADDR)")
	flag.StringVar(&cfg.DatabaseURL, "database-url", getenv("DATABASE_URL", ""), "postgres connection URL (env: DATABASE_URL)")
	flag.StringVar(&cfg.Model, "model", getenv("ANTHROPIC_MODEL", defaultModel), "anthropic model (env: ANTHROPIC_MODEL)")
	flag.BoolVar(&cfg.NLGEnabled, "nlg-enabled", getenvBool("NLG_ENABLED", true), "render answers with the LLM (env: NLG_ENABLED)")
	flag.StringVar(&originsCSV, "allowed-origins", getenv("ALLOWED_ORIGINS", ""), "allowed CORS origins csv (env: ALLOWED_ORIGINS)")

	flag.Parse()

	if cfg.ShowVersion {
		return cfg, nil
	}

	cfg.AllowedOrigins = splitCSV(originsCSV)

	var err error
	if cfg.MaxTokens, err = getenvInt("MAX_TOKENS", defaultMaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.MaxRetries, err = getenvInt("MAX_RETRIES", 3); err != nil {
		return Config{}, err
	}
	if cfg.MemoryWindow, err = getenvInt("MEMORY_WINDOW", 3); err != nil {
		return Config{}, err
	}
	if cfg.NLGMaxRows, err = getenvInt("NLG_MAX_ROWS", 10); err != nil {
		return Config{}, err
	}
	if cfg.CacheCapacity, err = getenvInt("CACHE_CAPACITY", 1000); err != nil {
		return Config{}, err
	}
	if cfg.CacheTTL, err = getenvDuration("CACHE_TTL", 5*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = getenvDuration("SESSION_TTL", time.Hour); err != nil {
		return Config{}, err
	}
	companyID, err := getenvInt("DEFAULT_COMPANY_ID", defaultCompanyID)
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultCompanyID = int64(companyID)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database URL is empty (set DATABASE_URL or --database-url)")
	}
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return Config{}, fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}

	return cfg, nil
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				t := a.Value.Time().UTC()
				a.Value = slog.StringValue(formatRFC3339Millis(t))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
