// Package main runs the pagebot worker, which processes inbound messages from the event bus.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/pagebot/pkg/cmd"
	"github.com/dukex/pagebot/pkg/engine"
	"github.com/dukex/pagebot/pkg/log"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "pagebot-worker"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	command := &cli.Command{
		Name:                  serviceName,
		EnableShellCompletion: true,
		Usage:                 "Process inbound Messenger messages",
		Flags: append(cmd.Flags(),
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
		),
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule(serviceName).With("worker_id", workerID)

	logger.InfoContext(ctx, "Initializing pagebot worker")

	config := cmd.ConfigFromCommand(command, serviceName)
	if config.EventBus != cmd.EventBusKafka {
		logger.WarnContext(ctx, "memory event bus only reaches this process, the API will not feed this worker")
	}

	runtime, err := cmd.Build(ctx, logger, config)
	if err != nil {
		return err
	}

	defer func() {
		err := runtime.Close(context.WithoutCancel(ctx))
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
		}
	}()

	err = engine.NewWorker(logger, runtime.Engine, runtime.Bus).Start(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()
	logger.InfoContext(ctx, "Shutting down worker")

	return nil
}
