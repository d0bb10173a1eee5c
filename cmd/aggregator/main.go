package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/minasamir1401/werete/internal/bot"
	"github.com/minasamir1401/werete/internal/cache"
	"github.com/minasamir1401/werete/internal/config"
	"github.com/minasamir1401/werete/internal/db"
	"github.com/minasamir1401/werete/internal/httpapi"
	"github.com/minasamir1401/werete/internal/items"
	"github.com/minasamir1401/werete/internal/logger"
	"github.com/minasamir1401/werete/internal/metrics"
	"github.com/minasamir1401/werete/internal/reconcile"
	"github.com/minasamir1401/werete/internal/scheduler"
	"github.com/minasamir1401/werete/internal/sources"
)

func main() {
	cfgPath := flag.String("config", config.DefaultConfigPath(), "path to config.json")
	flag.Parse()

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
		WithCaller: cfg.Debug,
	}); err != nil {
		log.Fatalf("logger error: %v", err)
	}

	if err := run(cfg); err != nil {
		logger.Error(context.Background(), "aggregator stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return err
	}
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	snap := cache.New(cfg.CacheSize, cfg.CacheTTL())

	client := sources.NewClient(cfg.FetchTimeout())
	resolver := sources.NewResolver(store, sources.NewRegistry(client))
	manager := sources.NewManager(resolver, m)
	writer := reconcile.NewWriter(store, snap, m)

	writer.SyncMetrics(ctx)

	notifier, err := newNotifier(cfg.Telegram, cfg.Debug)
	if err != nil {
		return err
	}
	if notifier == nil {
		logger.Warn(ctx, "telegram bot token not set, admin alerts disabled")
	}

	intervals := map[items.Domain]time.Duration{}
	for _, spec := range items.Domains {
		if d := cfg.Interval(string(spec.Domain)); d > 0 {
			intervals[spec.Domain] = d
		}
	}
	sched := scheduler.New(manager, writer, store, notifier, m, scheduler.Options{
		Intervals:     intervals,
		AlertThrottle: cfg.AlertThrottle(),
	})

	h := httpapi.NewHandler(httpapi.Deps{
		Store:     store,
		Writer:    writer,
		Cache:     snap,
		Resolver:  resolver,
		Cycles:    sched,
		Backfill:  sources.NewHistoryBackfill(client),
		Notifier:  notifier,
		Metrics:   m,
		BackupDir: filepath.Join(cfg.DataDir, "backups"),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, cfg.Debug),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info(ctx, "aggregator starting", "addr", cfg.HTTPAddr, "db", cfg.DBPath)
	sched.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		sched.Stop()
		return err
	})
	return g.Wait()
}

// newNotifier returns a nil interface when no bot token is configured.
func newNotifier(tg config.TelegramConfig, debug bool) (scheduler.Notifier, error) {
	if tg.BotToken == "" {
		return nil, nil
	}
	n, err := bot.New(tg.BotToken, tg.AdminChatIDs, debug)
	if err != nil {
		return nil, err
	}
	return n, nil
}
