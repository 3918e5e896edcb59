package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/example/ride-ops/internal/ai"
	"github.com/example/ride-ops/internal/auth"
	"github.com/example/ride-ops/internal/config"
	"github.com/example/ride-ops/internal/geo"
	httpapi "github.com/example/ride-ops/internal/http"
	"github.com/example/ride-ops/internal/ingest"
	"github.com/example/ride-ops/internal/logging"
	"github.com/example/ride-ops/internal/mapview"
	"github.com/example/ride-ops/internal/matcher"
	"github.com/example/ride-ops/internal/models"
	"github.com/example/ride-ops/internal/notify"
	"github.com/example/ride-ops/internal/observability"
	"github.com/example/ride-ops/internal/payments"
	"github.com/example/ride-ops/internal/routing"
	"github.com/example/ride-ops/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	deps := httpapi.Deps{
		Store: store,
		Auth:  auth.NewService(cfg.JWTSecret),
		Map: mapview.CanvasOptions{
			TileURL:     cfg.MapTileURL,
			Attribution: cfg.MapAttribution,
			Center:      models.Coord{Lat: cfg.MapCenterLat, Lon: cfg.MapCenterLon},
			Zoom:        cfg.MapZoom,
		},
		AllowedOrigins: cfg.AllowedOrigins,
		Ready:          []httpapi.ReadyCheck{{Name: "store", Check: store.Ping}},
	}

	var index geo.Geo
	if cfg.RedisAddr != "" {
		rg := geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		defer rg.Close()
		index = rg
		deps.Ready = append(deps.Ready, httpapi.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rg.Client().Ping(ctx).Err()
		}})
	} else {
		index = geo.NewIndex()
	}

	svc := &matcher.Service{Geo: index, Store: store, RadiusM: cfg.MatchRadiusM, TopN: cfg.MatcherTopN, Logger: logger}
	if cfg.OSRMURL != "" {
		svc.Routing = &routing.Cached{Next: routing.NewOSRMClient(cfg.OSRMURL), Cache: routing.NewCache(cfg.RouteTTL)}
	}
	deps.Matcher = svc
	go reindexLoop(ctx, svc, cfg.ReindexEvery, logger)

	if cfg.GeminiAPIKey != "" {
		gc, err := ai.NewGeminiClient(ctx, ai.GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
		if err != nil {
			logger.Warn("marketing assistant disabled", "error", err)
		} else {
			deps.AI = gc
		}
	}
	if cfg.EmailAPIURL != "" {
		deps.Mailer = notify.NewMailer(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom)
	}
	if cfg.StripeAPIKey != "" {
		deps.Payments = payments.NewStripeClient(cfg.StripeAPIKey)
	}
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewAuditProducer(cfg.KafkaBrokers, cfg.KafkaAuditTopic)
		defer kp.Close()
		deps.Audit = kp
	}

	api := httpapi.NewServer(deps, logger)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("ride-ops listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	api.Sessions.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// openStore connects to Postgres when a DSN is configured and otherwise
// falls back to a seeded in-memory store.
func openStore(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (storage.Store, error) {
	if cfg.PGDSN == "" {
		logger.Warn("PG_DSN not set, using seeded in-memory store")
		m := storage.NewMemoryStore()
		storage.Seed(m, time.Now().UTC())
		return m, nil
	}
	ps, err := storage.NewPostgresStore(ctx, cfg.PGDSN)
	if err != nil {
		return nil, err
	}
	if cfg.RunMigrations {
		schema, err := os.ReadFile(filepath.Join("migrations", "001_create_dashboard.sql"))
		if err != nil {
			ps.Close()
			return nil, err
		}
		if err := ps.Migrate(ctx, string(schema)); err != nil {
			ps.Close()
			return nil, err
		}
		logger.Info("migration applied", "file", "001_create_dashboard.sql")
	}
	return ps, nil
}

func reindexLoop(ctx context.Context, svc *matcher.Service, every time.Duration, logger *slog.Logger) {
	reindex := func() {
		n, err := svc.Reindex(ctx)
		if err != nil {
			logger.Error("reindex failed", "error", err)
			return
		}
		observability.IndexedTrips.Set(float64(n))
		logger.Debug("reindexed open trips", "count", n)
	}
	reindex()
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			reindex()
		}
	}
}
