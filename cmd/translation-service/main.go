// main package for the translation-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/translation-service/internal/config"
	"github.com/book-expert/translation-service/internal/worker"
	"github.com/nats-io/nats.go"
)

const (
	bootstrapLogFile = "translation-service-bootstrap.log"
	serviceLogFile   = "translation-service.log"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	secrets, err := config.LoadSecrets(config.DefaultEnvFile)
	if err != nil {
		bootstrapLog.Error("Failed to load secrets: %v", err)

		return fmt.Errorf("failed to load secrets: %w", err)
	}

	err = secrets.Validate(cfg)
	if err != nil {
		bootstrapLog.Error("Refusing to start: %v", err)

		return err
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("translation-service"))
	if err != nil {
		finalLog.Error("Failed to connect to NATS at %s: %v", cfg.NATS.URL, err)

		return fmt.Errorf("failed to connect to nats: %w", err)
	}

	defer natsConnection.Close()

	app, err := buildApp(ctx, cfg, secrets, natsConnection, finalLog)
	if err != nil {
		finalLog.Error("Failed to assemble pipeline: %v", err)

		return err
	}

	defer app.Close()

	workerInstance, err := worker.NewNatsWorker(natsConnection, app.pipeline, worker.Config{
		SubjectPrefix:     cfg.NATS.JobSubjectPrefix,
		QueueGroup:        cfg.NATS.QueueGroup,
		MaxConcurrentJobs: cfg.Pipeline.MaxConcurrentJobs,
		JobTimeout:        time.Duration(cfg.Pipeline.JobTimeoutSeconds) * time.Second,
	}, finalLog)
	if err != nil {
		finalLog.Error("Failed to create worker: %v", err)

		return fmt.Errorf("failed to create worker: %w", err)
	}

	finalLog.System(
		"Translation-Service initialized. Listening for jobs on '%s.*' (max %d concurrent).",
		cfg.NATS.JobSubjectPrefix, cfg.Pipeline.MaxConcurrentJobs,
	)

	err = workerInstance.Run(ctx)
	if err != nil {
		finalLog.Error("Worker stopped with error: %v", err)

		return fmt.Errorf("worker stopped: %w", err)
	}

	finalLog.System("Translation-Service shut down cleanly.")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
