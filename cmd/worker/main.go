package main

import (
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"pcb-mes/internal/config"
	applog "pcb-mes/internal/log"
	"pcb-mes/internal/storage"
	appTemporal "pcb-mes/internal/temporal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := applog.Base()
		boot.Fatal().Err(err).Msg("load config")
	}
	applog.Configure(applog.Config{Level: cfg.LogLevel, Service: "pcb-mes-worker"})
	logger := applog.WithComponent("main")

	store, err := storage.NewPostgresStore(cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer store.Close()

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect temporal")
	}
	defer temporalClient.Close()

	activities := &appTemporal.Activities{Store: store}

	w := worker.New(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(appTemporal.AttachmentIntakeWorkflow, workflow.RegisterOptions{Name: appTemporal.AttachmentIntakeWorkflowName})
	w.RegisterWorkflowWithOptions(appTemporal.StageTransitionWorkflow, workflow.RegisterOptions{Name: appTemporal.StageTransitionWorkflowName})
	w.RegisterActivity(activities.RegisterAttachmentActivity)
	w.RegisterActivity(activities.QueueApprovalActivity)
	w.RegisterActivity(activities.ResolveApprovalActivity)
	w.RegisterActivity(activities.ValidateTransitionActivity)
	w.RegisterActivity(activities.AdvanceStageActivity)

	logger.Info().Str("task_queue", cfg.TemporalTaskQueue).Msg("worker running")
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
}
