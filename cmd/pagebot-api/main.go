package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/pagebot/pkg/cmd"
	"github.com/dukex/pagebot/pkg/engine"
	"github.com/dukex/pagebot/pkg/log"
	"github.com/dukex/pagebot/pkg/scheduler"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

const (
	serviceName = "pagebot-api"
	defaultPort = 9091
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Edit scenarios, receive Messenger webhooks and run test conversations",
		EnableShellCompletion: true,
		Flags: append(cmd.Flags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.BoolFlag{
				Name:    "embedded",
				Usage:   "Also run the worker and scheduler in this process (always on with the memory event bus)",
				Sources: cli.EnvVars("EMBEDDED_WORKER"),
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

	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing pagebot API")

	config := cmd.ConfigFromCommand(command, serviceName)

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

	if command.Bool("embedded") || config.EventBus != cmd.EventBusKafka {
		stopEmbedded, err := startEmbedded(ctx, runtime)
		if err != nil {
			return err
		}

		defer stopEmbedded()
	}

	return NewAPI(logger, runtime).Start(ctx, command.Int("port"))
}

// startEmbedded runs the worker and scheduler on the API's own bus. The memory bus only reaches
// subscribers of the same process.
func startEmbedded(ctx context.Context, runtime *cmd.Runtime) (func(), error) {
	logger := runtime.Logger

	logger.InfoContext(ctx, "Starting embedded worker and scheduler")

	cron := scheduler.New(logger, runtime.Store.Scenarios(), runtime.Engine)

	err := cron.Register(runtime.Bus)
	if err != nil {
		return nil, err
	}

	err = engine.NewWorker(logger, runtime.Engine, runtime.Bus).Start(ctx)
	if err != nil {
		return nil, err
	}

	err = cron.Start(ctx)
	if err != nil {
		return nil, err
	}

	return func() {
		err := cron.Stop(context.WithoutCancel(ctx))
		if err != nil {
			logger.ErrorContext(ctx, "Failed to stop scheduler", "error", err)
		}
	}, nil
}
