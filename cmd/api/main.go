package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"

	"pcb-mes/internal/api"
	"pcb-mes/internal/config"
	applog "pcb-mes/internal/log"
	"pcb-mes/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := applog.Base()
		boot.Fatal().Err(err).Msg("load config")
	}
	applog.Configure(applog.Config{Level: cfg.LogLevel, Service: "pcb-mes-api"})
	logger := applog.WithComponent("main")

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	blob, err := storage.NewMinioStore(ctx, storage.MinioOptions{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
		Bucket:    cfg.MinioBucket,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect minio")
	}
	if err := store.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("postgres ping")
	}
	if err := store.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("apply schema")
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect temporal")
	}
	defer temporalClient.Close()

	h := api.NewHandler(cfg, store, blob, temporalClient)
	router := api.NewRouter(h)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
