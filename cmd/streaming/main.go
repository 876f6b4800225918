package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/your-org/mediastream/internal/analytics"
	"github.com/your-org/mediastream/internal/api"
	"github.com/your-org/mediastream/internal/auth"
	"github.com/your-org/mediastream/internal/catalog"
	"github.com/your-org/mediastream/internal/ingestion"
	"github.com/your-org/mediastream/internal/ratelimit"
	"github.com/your-org/mediastream/internal/streaming"
	"github.com/your-org/mediastream/internal/streamtoken"
	"github.com/your-org/mediastream/internal/viewlog"
	"github.com/your-org/mediastream/pkg/config"
	"github.com/your-org/mediastream/pkg/database"
	"github.com/your-org/mediastream/pkg/kafka"
	"github.com/your-org/mediastream/pkg/logger"
	"github.com/your-org/mediastream/pkg/metrics"
	"github.com/your-org/mediastream/pkg/storage/objectstore"
	"github.com/your-org/mediastream/pkg/tracing"
)

// stores bundles the persistence drivers selected by STORE_DRIVER.
type stores struct {
	catalog catalog.Store
	users   auth.UserStore
	views   viewlog.Store
	closer  io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel, logger.Options{
		Console: cfg.App.Environment == "development",
		Fields:  map[string]string{"service": cfg.App.Name, "version": cfg.App.Version},
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
		Attributes:  parseResourceAttributes(cfg.Tracing.ResourceAttr),
		ServiceName: cfg.App.Name,
		Version:     cfg.App.Version,
	})
	if err != nil {
		logr.Fatal("init tracing", zap.Error(err))
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	st, err := openStores(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("open stores", zap.Error(err))
	}

	blobs, err := objectstore.New(objectstore.Config{
		Provider:  cfg.Storage.Provider,
		LocalRoot: cfg.Storage.LocalRoot,
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		Bucket:    cfg.Storage.Bucket,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		logr.Fatal("init object store", zap.Error(err))
	}

	viewEvents := newPublisher(cfg, cfg.Kafka.ViewsTopic, logr)
	mediaEvents := newPublisher(cfg, cfg.Kafka.MediaTopic, logr)

	var redisClient *redis.Client
	if cfg.Analytics.CacheDriver == "redis" || cfg.RateLimit.Driver == "redis" {
		redisClient, err = database.NewRedis(cfg.Analytics.RedisURL, cfg.Analytics.CacheTimeout)
		if err != nil {
			logr.Fatal("init redis", zap.Error(err))
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logr.Warn("redis unreachable at startup, cache and limiter will degrade", zap.Error(err))
		}
	}

	jwtManager, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		logr.Fatal("init session tokens", zap.Error(err))
	}
	authService := auth.NewService(auth.Params{
		Users:  st.users,
		Tokens: jwtManager,
		Logger: logr,
	})

	issuer, err := streamtoken.NewIssuer(streamtoken.Params{
		Secret:  cfg.Stream.TokenSecret,
		TTL:     cfg.Stream.TokenTTL(),
		BaseURL: cfg.HTTP.BaseURL,
		Catalog: st.catalog,
		Logger:  logr,
	})
	if err != nil {
		logr.Fatal("init stream token issuer", zap.Error(err))
	}

	var cacheBackend analytics.Backend
	switch cfg.Analytics.CacheDriver {
	case "redis":
		cacheBackend = analytics.NewRedisBackend(redisClient)
	case "memory":
		cacheBackend = analytics.NewMemoryBackend()
	}
	cache := analytics.NewCache(cacheBackend, analytics.NewAggregator(st.catalog, st.views), analytics.CacheConfig{
		TTL:             cfg.Analytics.CacheTTL(),
		Timeout:         cfg.Analytics.CacheTimeout,
		BreakerFailures: cfg.Analytics.BreakerFailures,
		BreakerCooldown: cfg.Analytics.BreakerCooldown,
		Logger:          logr,
	})

	viewService := viewlog.NewService(viewlog.Params{
		Catalog:   st.catalog,
		Store:     st.views,
		Cache:     cache,
		Publisher: viewEvents,
		Logger:    logr,
	})
	dispatcher := viewlog.NewDispatcher(viewService, viewlog.DispatcherConfig{
		Workers:   cfg.ViewLog.Workers,
		QueueSize: cfg.ViewLog.QueueSize,
		Timeout:   cfg.ViewLog.Timeout,
		Logger:    logr,
	})

	var limitStore ratelimit.Store = ratelimit.NewMemoryStore()
	if cfg.RateLimit.Driver == "redis" {
		limitStore = ratelimit.NewRedisStore(redisClient, "ratelimit:view:")
	}
	limiter := ratelimit.NewLimiter(limitStore, ratelimit.Config{
		Max:     cfg.RateLimit.MaxRequests,
		Window:  cfg.RateLimit.Window(),
		Timeout: cfg.Analytics.CacheTimeout,
		Logger:  logr,
	})

	handler := api.NewHTTPHandler(api.Params{
		Auth:   authService,
		Issuer: issuer,
		Streamer: streaming.NewStreamer(streaming.Params{
			Tokens:  issuer,
			Catalog: st.catalog,
			Blobs:   blobs,
			Views:   dispatcher,
			Logger:  logr,
		}),
		Views:     viewService,
		Analytics: cache,
		Uploader: ingestion.NewService(ingestion.Params{
			Store:     blobs,
			Catalog:   st.catalog,
			Publisher: mediaEvents,
			Logger:    logr,
		}),
		Catalog:        st.catalog,
		Limiter:        limiter,
		Logger:         logr,
		MaxUploadBytes: cfg.Upload.MaxSizeBytes,
		FormMemBytes:   cfg.Upload.MultipartMemBytes,
		AuthRateLimit:  cfg.Auth.LoginRateLimit,
		AuthRateWindow: cfg.Auth.LoginRateWindow,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	var metricsServer *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logr.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Error("http server shutdown failed", zap.Error(err))
		}
		if metricsServer != nil {
			_ = metricsServer.Shutdown(shutdownCtx)
		}
		if err := dispatcher.Close(shutdownCtx); err != nil {
			logr.Error("view dispatcher shutdown failed", zap.Error(err))
		}
		for name, p := range map[string]kafka.Publisher{"views": viewEvents, "media": mediaEvents} {
			if err := p.Close(shutdownCtx); err != nil {
				logr.Error("kafka producer shutdown failed", zap.String("producer", name), zap.Error(err))
			}
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if err := blobs.Close(); err != nil {
			logr.Error("object store shutdown failed", zap.Error(err))
		}
		if err := st.closer.Close(); err != nil {
			logr.Error("store shutdown failed", zap.Error(err))
		}
	}()

	logr.Info("streaming service starting",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("store", cfg.Store.Driver),
		zap.String("cache", cfg.Analytics.CacheDriver),
		zap.String("rate_limit", cfg.RateLimit.Driver))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logr.Fatal("http server failed", zap.Error(err))
	}
	<-shutdownDone
}

func openStores(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*stores, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if err := database.Migrate(logr, cfg.Store.DatabaseURL); err != nil {
			return nil, err
		}
		pool, err := database.OpenPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &stores{
			catalog: catalog.NewPostgresStore(pool),
			users:   auth.NewPostgresUserStore(pool),
			views:   viewlog.NewPostgresStore(pool),
			closer:  closerFunc(func() error { pool.Close(); return nil }),
		}, nil
	case "bolt":
		db, err := database.OpenBolt(cfg.Store.BoltPath)
		if err != nil {
			return nil, err
		}
		return &stores{
			catalog: catalog.NewBoltStore(db),
			users:   auth.NewBoltUserStore(db),
			views:   viewlog.NewBoltStore(db),
			closer:  db,
		}, nil
	default:
		logr.Warn("using in-memory stores, data is lost on restart")
		return &stores{
			catalog: catalog.NewMemoryStore(),
			users:   auth.NewMemoryUserStore(),
			views:   viewlog.NewMemoryStore(),
			closer:  closerFunc(func() error { return nil }),
		}, nil
	}
}

// newPublisher returns an async Kafka producer for topic, or a no-op when no
// brokers are configured.
func newPublisher(cfg *config.Config, topic string, logr *zap.Logger) kafka.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		return kafka.NopPublisher{}
	}
	return kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        topic,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		Compression:  kafka.CompressionFromString(cfg.Kafka.CompressionCodec),
		RequiredAcks: kafkago.RequireAll,
		MaxAttempts:  cfg.Kafka.Retries,
		Async:        true,
		Logger:       logr,
	})
}

func parseResourceAttributes(raw string) map[string]string {
	attrs := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		attrs[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return attrs
}
