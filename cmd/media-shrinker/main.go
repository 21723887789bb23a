package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"media-shrinker/internal/blobstore"
	"media-shrinker/internal/handlers"
	"media-shrinker/internal/jobs"
	"media-shrinker/internal/logging"
	"media-shrinker/internal/memory"
	"media-shrinker/internal/metrics"
	"media-shrinker/internal/middleware"
	"media-shrinker/internal/sizing"
	"media-shrinker/internal/startup"
	"media-shrinker/internal/transcoder"
	"media-shrinker/internal/workers"
)

const (
	shutdownTimeout    = 30 * time.Second
	collectorInterval  = 15 * time.Second
	purgeInterval      = time.Hour
	limiterCleanupTick = time.Minute
)

// app holds the long-lived components that need an orderly shutdown.
type app struct {
	config    *startup.Config
	ff        *transcoder.FFmpeg
	redis     *redis.Client
	sqlite    *jobs.SQLiteStore
	queue     *jobs.Queue
	monitor   *memory.Monitor
	collector *metrics.Collector
	server    *http.Server
	metrics   *http.Server
	cancel    context.CancelFunc
}

func main() {
	startTime := time.Now()
	defer logging.Sync()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	metrics.InitializeMetrics()
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

	memory.ApplyLimit(config.MemoryLimit, config.MemoryRatio)

	ctx, cancel := context.WithCancel(context.Background())
	a := &app{config: config, cancel: cancel}

	h, limiter, err := a.build(ctx)
	if err != nil {
		a.close()
		startup.LogFatal("Startup failed: %v", err)
	}
	limiter.StartCleanup(ctx, limiterCleanupTick)

	router := setupRouter(h, limiter)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	a.server = &http.Server{
		Addr:    ":" + config.Port,
		Handler: withMiddleware(router, config),
		// Part uploads go straight to S3, so request bodies stay small.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if config.MetricsEnabled {
		a.metrics = newMetricsServer(config.MetricsPort)
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	a.monitor.Start()
	a.queue.StartWorkers()
	a.collector.Start()

	go a.handleShutdown()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
}

// build wires the conversion pipeline and returns the HTTP handlers.
func (a *app) build(ctx context.Context) (*handlers.Handlers, *middleware.IPRateLimiter, error) {
	config := a.config

	ff, err := transcoder.NewFFmpeg()
	if err != nil {
		return nil, nil, err
	}
	a.ff = ff
	threads := workers.ThreadsPerWorker(config.WorkerConcurrency)
	ff.SetThreads(threads)

	ffVersion, err := ff.Version(ctx)
	if err != nil {
		return nil, nil, err
	}

	if config.ImageEncoder == transcoder.EncoderAuto || config.ImageEncoder == transcoder.EncoderVips {
		if err := transcoder.InitVips(); err != nil {
			logging.Warn("libvips unavailable: %v", err)
		}
	}
	images, err := transcoder.NewImageEncoder(config.ImageEncoder, ff)
	if err != nil {
		return nil, nil, err
	}
	startup.LogTranscoderInit(ffVersion, config.ImageEncoder, transcoder.IsVipsAvailable())

	store, storePinger, err := a.openStatusStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	blobs, err := blobstore.NewS3Store(ctx, blobstore.Config{
		Bucket:       config.Bucket,
		Region:       config.AWSRegion,
		Endpoint:     config.S3Endpoint,
		UsePathStyle: config.S3PathStyle,
	})
	if err != nil {
		return nil, nil, err
	}

	converter, err := jobs.NewConverter(store, blobs,
		sizing.NewImageTargeter(images, config.TargetBytes),
		sizing.NewVideoTargeter(ff, config.TargetBytes),
		jobs.ConverterConfig{TargetBytes: config.TargetBytes, WorkDir: config.WorkDir},
	)
	if err != nil {
		return nil, nil, err
	}

	a.monitor = memory.NewMonitor(memory.DefaultConfig())
	a.queue, err = jobs.NewQueue(jobs.QueueConfig{
		RedisURL:    config.RedisURL,
		Concurrency: config.WorkerConcurrency,
		Timeout:     config.JobTimeout,
		Gate:        a.monitor,
	}, converter)
	if err != nil {
		return nil, nil, err
	}
	startup.LogQueueInit(jobs.DefaultQueueName, config.WorkerConcurrency, threads)

	a.collector = metrics.NewCollector(a.queue, collectorInterval)

	status := jobs.NewStatusResolver(store, blobs, config.TargetBytes, config.PresignTTL)
	h := handlers.New(blobs, a.queue, status, handlers.Config{
		Bucket:     config.Bucket,
		PartURLTTL: config.PresignTTL,
	})
	h.AddDependency(config.StatusStore, storePinger)
	h.AddDependency("s3", blobs)

	limiter := middleware.NewIPRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: config.APIRateLimit,
		Burst:             config.APIRateBurst,
	})
	return h, limiter, nil
}

// openStatusStore opens the configured status backend.
func (a *app) openStatusStore(ctx context.Context) (jobs.Store, handlers.Pinger, error) {
	start := time.Now()

	if a.config.StatusStore == startup.StoreSQLite {
		store, err := jobs.NewSQLiteStore(ctx, a.config.DatabasePath(), a.config.StatusTTL)
		if err != nil {
			return nil, nil, err
		}
		a.sqlite = store
		if a.config.StatusTTL > 0 {
			store.StartPurger(ctx, purgeInterval)
		}
		startup.LogStatusStoreInit(startup.StoreSQLite, a.config.DatabasePath(), time.Since(start))
		return store, store, nil
	}

	opt, err := redis.ParseURL(a.config.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	a.redis = redis.NewClient(opt)
	store := jobs.NewRedisStore(a.redis, a.config.StatusTTL)
	if err := store.Ping(ctx); err != nil {
		return nil, nil, err
	}
	startup.LogStatusStoreInit(startup.StoreRedis, opt.Addr, time.Since(start))
	return store, store, nil
}

func newMetricsServer(port string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}

func (a *app) handleShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := a.server.Shutdown(ctx); err != nil {
		logging.Error("HTTP server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if a.metrics != nil {
		if err := a.metrics.Shutdown(ctx); err != nil {
			logging.Error("Metrics server shutdown error: %v", err)
		}
	}

	a.close()
	startup.LogShutdownComplete()
}

// close stops background work and releases connections. Components that
// were never created are skipped.
func (a *app) close() {
	if a.collector != nil {
		a.collector.Stop()
	}
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.queue != nil {
		startup.LogShutdownStep("Draining conversion workers")
		a.queue.Shutdown()
		startup.LogShutdownStepComplete("Conversion workers stopped")
	}
	if a.ff != nil {
		a.ff.Cleanup()
		startup.LogShutdownStepComplete("Transcoder cleanup complete")
	}
	transcoder.ShutdownVips()
	if a.cancel != nil {
		a.cancel()
	}
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			logging.Warn("Closing status database: %v", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logging.Warn("Closing redis client: %v", err)
		}
	}
}
