package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.temporal.io/sdk/client"

	"pcb-mes/internal/config"
	"pcb-mes/internal/events"
	applog "pcb-mes/internal/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := applog.Base()
		boot.Fatal().Err(err).Msg("load config")
	}
	applog.Configure(applog.Config{Level: cfg.LogLevel, Service: "pcb-mes-event-handler"})
	logger := applog.WithComponent("main")

	minioClient, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect minio")
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect temporal")
	}
	defer temporalClient.Close()

	starter := &events.IntakeStarter{
		Client:    temporalClient,
		TaskQueue: cfg.TemporalTaskQueue,
		Prefix:    cfg.IntakeWorkflowPrefix,
	}
	source := events.NewMinioUploadEventSource(minioClient, cfg.MinioBucket, "", "")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("bucket", cfg.MinioBucket).Msg("listening for object-created events")
	if err := source.Run(ctx, starter.Handle); err != nil {
		logger.Fatal().Err(err).Msg("event-handler stopped with error")
	}
}
