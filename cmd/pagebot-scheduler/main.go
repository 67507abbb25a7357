// Package main runs the pagebot scheduler: cron time triggers and wait-node resumption.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/pagebot/pkg/cmd"
	"github.com/dukex/pagebot/pkg/log"
	"github.com/dukex/pagebot/pkg/scheduler"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

const serviceName = "pagebot-scheduler"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	command := &cli.Command{
		Name:                  serviceName,
		EnableShellCompletion: true,
		Usage:                 "Fire time triggers and resume expired waits",
		Flags: append(cmd.Flags(),
			&cli.DurationFlag{
				Name:    "sweep-interval",
				Usage:   "How often suspended wait nodes are checked",
				Value:   scheduler.DefaultSweepInterval,
				Sources: cli.EnvVars("SWEEP_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "sync-interval",
				Usage:   "How often published time triggers are reloaded",
				Value:   scheduler.DefaultSyncInterval,
				Sources: cli.EnvVars("SYNC_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "timezone",
				Usage:   "Time zone of cron expressions",
				Value:   "UTC",
				Sources: cli.EnvVars("SCHEDULER_TIMEZONE"),
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

	logger := log.WithModule(serviceName)

	logger.InfoContext(ctx, "Initializing pagebot scheduler")

	location, err := time.LoadLocation(command.String("timezone"))
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	runtime, err := cmd.Build(ctx, logger, cmd.ConfigFromCommand(command, serviceName))
	if err != nil {
		return err
	}

	defer func() {
		err := runtime.Close(context.WithoutCancel(ctx))
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close runtime", "error", err)
		}
	}()

	cron := scheduler.New(logger, runtime.Store.Scenarios(), runtime.Engine,
		scheduler.WithSweepInterval(command.Duration("sweep-interval")),
		scheduler.WithSyncInterval(command.Duration("sync-interval")),
		scheduler.WithLocation(location))

	err = cron.Register(runtime.Bus)
	if err != nil {
		return err
	}

	err = runtime.Bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	err = cron.Start(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()
	logger.InfoContext(ctx, "Shutting down scheduler")

	return cron.Stop(context.WithoutCancel(ctx))
}
