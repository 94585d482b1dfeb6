package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/fieldsafe/kumo/internal/cache"
	"github.com/fieldsafe/kumo/internal/classify"
	"github.com/fieldsafe/kumo/internal/config"
	"github.com/fieldsafe/kumo/internal/invalidate"
	"github.com/fieldsafe/kumo/internal/lock"
	"github.com/fieldsafe/kumo/internal/message"
	"github.com/fieldsafe/kumo/internal/outbox"
	"github.com/fieldsafe/kumo/internal/strategy"
	"github.com/fieldsafe/kumo/internal/swgen"
	"github.com/fieldsafe/kumo/internal/upstream"
	"github.com/fieldsafe/kumo/internal/worker"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}
	manifest, err := config.LoadManifest(cfg.ManifestPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("manifest error")
	}

	ctx := context.Background()

	var (
		store  cache.Store
		bus    message.Bus
		locker *lock.Locker
	)
	if cfg.DevMode {
		store = cache.NewMemoryStore()
		bus = message.NewInProcessBus()
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.S3Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("aws configuration error")
		}
		s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		})
		store = cache.NewS3Store(cfg.S3Bucket, s3Client)

		redisClient := lock.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		bus = message.NewRedisBus(redisClient, logger)
		locker = lock.NewLocker(redisClient, "lock:")
	}

	origin := upstream.NewClient(cfg.BackendBaseURL)
	proxy, err := origin.Proxy()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid backend base URL")
	}

	workerCfg := worker.Config{
		Version:     manifest.Version,
		ShellAssets: manifest.ShellAssets,
		Rules: classify.Rules{
			APIPrefixes:      manifest.APIPrefixes,
			BackendHosts:     manifest.BackendHosts,
			StaticExtensions: manifest.StaticExtensions,
		},
	}
	w := worker.New(workerCfg, store, origin, logger)

	lockTTL := time.Duration(cfg.LockTTLSeconds) * time.Second
	exec := strategy.NewExecutor(store, origin, locker, lockTTL, logger)
	fetchHandler := worker.NewHandler(w, exec, proxy, logger)

	// Install precaches the shell atomically; a failure leaves the previous
	// release serving and aborts this one.
	if err := w.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker did not activate")
	}

	invHandler := invalidate.New(store, bus, w.ActiveGeneration, logger)
	go func() {
		if err := invHandler.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("invalidation handler stopped")
		}
	}()

	ob, err := outbox.Open(cfg.OutboxPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not open outbox")
	}
	defer ob.Close()
	notifier := outbox.NewNotifier(ob, bus, time.Duration(cfg.SyncCheckSeconds)*time.Second, logger)
	go notifier.Run(ctx)

	swHandler, err := swgen.DevHandler(swgen.Config{Worker: workerCfg})
	if err != nil {
		logger.Fatal().Err(err).Msg("could not render worker script")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(rw http.ResponseWriter, r *http.Request) {
		if w.State() == worker.StateActivated {
			rw.WriteHeader(http.StatusOK)
			return
		}
		rw.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.Handle("/sw.js", swHandler)
	mux.Handle("/", fetchHandler)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info().Str("addr", cfg.ListenAddr).Str("generation", w.Generation()).Msg("listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server error")
	}
}
