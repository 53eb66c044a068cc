package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/livefeed/internal/blob/s3"
	"github.com/alanyoungcy/livefeed/internal/cache/redis"
	"github.com/alanyoungcy/livefeed/internal/config"
	"github.com/alanyoungcy/livefeed/internal/domain"
	"github.com/alanyoungcy/livefeed/internal/history"
	"github.com/alanyoungcy/livefeed/internal/metrics"
	"github.com/alanyoungcy/livefeed/internal/monitor"
	"github.com/alanyoungcy/livefeed/internal/normalize"
	"github.com/alanyoungcy/livefeed/internal/notify"
	"github.com/alanyoungcy/livefeed/internal/server"
	"github.com/alanyoungcy/livefeed/internal/server/handler"
	"github.com/alanyoungcy/livefeed/internal/server/ws"
	"github.com/alanyoungcy/livefeed/internal/snapshot"
	"github.com/alanyoungcy/livefeed/internal/source"
	"github.com/alanyoungcy/livefeed/internal/store/postgres"
)

// ServiceName is reported by the root info endpoint.
const ServiceName = "Live Match Feed"

// Version is overridden at build time with -ldflags "-X ...app.Version=...".
var Version = "dev"

// Dependencies bundles every component the application runs. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Metrics   *metrics.Metrics
	Snapshots *snapshot.Store
	Reader    *source.Reader
	Detector  *monitor.Detector
	Hub       *ws.Hub
	Server    *server.Server

	// History is what the history endpoint reads.
	History domain.HistorySource
	// Pruner is nil when the history backend cannot be trimmed.
	Pruner *history.Pruner

	Notifier *notify.Notifier
}

// backends holds the optional external clients, nil when not configured.
type backends struct {
	redis    *redis.Client
	postgres *postgres.Client
	s3       *s3blob.Client
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Metrics: metrics.New()}
	var b backends

	// --- Redis (snapshot mirror and/or history list) ---
	if cfg.Redis.Enabled {
		breaker := redis.NewBreakerHook(redis.BreakerConfig{Name: "redis"}, logger, deps.Metrics)
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		}, breaker)
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })
		b.redis = rc
	}

	// --- PostgreSQL (history backend only) ---
	if strings.EqualFold(cfg.History.Backend, "postgres") {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		b.postgres = pg
	}

	// --- S3 (s3:// sources and snapshot export) ---
	if cfg.S3.Enabled {
		sc, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		closers = append(closers, func() { _ = sc.Close() })
		if err := sc.Health(ctx); err != nil {
			// Not fatal: s3 sources are retried every tick.
			logger.WarnContext(ctx, "wire: s3 bucket not reachable yet", slog.String("error", err.Error()))
		}
		b.s3 = sc
	}

	// --- Source reading and snapshots ---
	readerOpts := []source.Option{source.WithRecorder(deps.Metrics)}
	if b.s3 != nil {
		readerOpts = append(readerOpts, source.WithStore("s3", s3blob.NewReader(b.s3)))
	}
	deps.Reader = source.NewReader(logger, readerOpts...)
	deps.Snapshots = snapshot.NewStore(snapshot.Build(nil, time.Now()))

	// --- Notifications ---
	deps.Notifier = newNotifier(cfg.Notify, logger)

	// --- WebSocket hub ---
	deps.Hub = ws.NewHub(deps.Snapshots, logger.With(slog.String("component", "ws")), ws.Config{
		IdleCheckInterval: cfg.Monitor.IdleCheckInterval.Duration,
		SendBuffer:        cfg.Server.SendBuffer,
		AllowedOrigins:    cfg.Server.CORSOrigins,
	}, ws.WithRecorder(deps.Metrics))

	// --- History ---
	sinks := []monitor.NamedSink{{Name: "ws", Sink: deps.Hub.Broadcaster()}}
	store, err := historyStore(cfg, b, deps.Reader)
	if err != nil {
		return fail(err)
	}
	deps.History = store
	if w, ok := store.(domain.HistoryStore); ok {
		sinks = append(sinks, monitor.NamedSink{Name: "history", Sink: history.NewTracker(w, logger)})
	}
	if p, ok := store.(history.Prunable); ok {
		deps.Pruner = history.NewPruner(p, cfg.History.Retain, logger)
	}

	// --- Optional mirrors ---
	if b.redis != nil {
		mirror := redis.NewSnapshotMirror(b.redis, cfg.Redis.MirrorKey, cfg.Redis.MirrorChannel, cfg.Redis.MirrorTTL.Duration)
		sinks = append(sinks, monitor.NamedSink{Name: "redis", Sink: mirror})
	}
	if b.s3 != nil && cfg.S3.ExportLocation != "" {
		exporter, err := s3blob.NewSnapshotExporter(b.s3, cfg.S3.ExportLocation)
		if err != nil {
			return fail(fmt.Errorf("wire: s3 export: %w", err))
		}
		sinks = append(sinks, monitor.NamedSink{Name: "s3", Sink: exporter})
	}

	// --- Poll loop ---
	monitorOpts := []monitor.Option{
		monitor.WithRecorder(deps.Metrics),
		monitor.WithSinks(sinks...),
	}
	if deps.Notifier != nil {
		monitorOpts = append(monitorOpts, monitor.WithAlerter(deps.Notifier))
	}
	deps.Detector = monitor.New(monitor.Config{
		Sources:         cfg.SourceSpecs(),
		PollInterval:    cfg.Monitor.PollInterval.Duration,
		BackoffInterval: cfg.Monitor.BackoffInterval.Duration,
		SinkTimeout:     cfg.Monitor.SinkTimeout.Duration,
	},
		deps.Reader,
		normalize.New(logger, deps.Metrics),
		deps.Snapshots,
		logger,
		monitorOpts...,
	)

	// --- HTTP server ---
	deps.Server = server.NewServer(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		CORSOrigins:     cfg.Server.CORSOrigins,
		WSRatePerSecond: cfg.Server.WSRatePerSecond,
		WSBurst:         cfg.Server.WSBurst,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration,
	}, server.Handlers{
		Info:         handler.NewInfoHandler(ServiceName, Version),
		Health:       handler.NewHealthHandler(deps.Snapshots, deps.Hub, logger),
		Feed:         handler.NewFeedHandler(deps.Snapshots, logger),
		History:      handler.NewHistoryHandler(deps.History, cfg.History.Window, logger),
		WS:           deps.Hub.HandleWS,
		Metrics:      deps.Metrics.Handler(),
		OnWSRejected: func() { deps.Metrics.ConnectionRejected("rate_limited") },
	}, logger)

	logger.InfoContext(ctx, "wire: dependencies ready",
		slog.Int("sources", len(cfg.Sources)),
		slog.String("history_backend", cfg.History.Backend),
		slog.Int("sinks", len(sinks)),
		slog.Bool("redis", b.redis != nil),
		slog.Bool("s3", b.s3 != nil),
	)
	return deps, cleanup, nil
}

// historyStore picks the history backend. The file backend is read-only; the
// others also record removals.
func historyStore(cfg *config.Config, b backends, fetcher history.Fetcher) (domain.HistorySource, error) {
	switch strings.ToLower(cfg.History.Backend) {
	case "memory":
		return history.NewMemory(cfg.History.Retain), nil
	case "redis":
		if b.redis == nil {
			return nil, fmt.Errorf("wire: history: redis backend requires redis.enabled")
		}
		return redis.NewHistoryList(b.redis, cfg.Redis.HistoryKey, cfg.History.Retain), nil
	case "postgres":
		return postgres.NewHistoryStore(b.postgres.Pool(), cfg.History.Retain), nil
	case "file", "":
		return history.NewFileSource(fetcher, cfg.History.Location), nil
	default:
		return nil, fmt.Errorf("wire: history: unknown backend %q", cfg.History.Backend)
	}
}

func newNotifier(cfg config.NotifyConfig, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		return nil
	}
	return notify.NewNotifier(senders, cfg.Events, cfg.Cooldown.Duration, logger)
}
