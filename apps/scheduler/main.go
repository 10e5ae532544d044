package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duespay/internal/balance"
	"github.com/smallbiznis/duespay/internal/clock"
	"github.com/smallbiznis/duespay/internal/config"
	"github.com/smallbiznis/duespay/internal/invoice"
	"github.com/smallbiznis/duespay/internal/member"
	"github.com/smallbiznis/duespay/internal/migration"
	"github.com/smallbiznis/duespay/internal/observability"
	"github.com/smallbiznis/duespay/internal/providers"
	"github.com/smallbiznis/duespay/internal/reminder"
	"github.com/smallbiznis/duespay/internal/scheduler"
	"github.com/smallbiznis/duespay/internal/settings"
	"github.com/smallbiznis/duespay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	runOnce := flag.String("run-once", "", "run a single job (invoice_generation or reminder_check) and exit")
	flag.Parse()

	options := []fx.Option{
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		providers.Module,

		// Domain services required by scheduler
		member.Module,
		balance.Module,
		invoice.Module,
		settings.Module,
		reminder.Module,

		// No server module!
		scheduler.Module,
	}

	if *runOnce == "" {
		fx.New(options...).Run()
		return
	}

	var (
		sched *scheduler.Scheduler
		log   *zap.Logger
	)
	app := fx.New(append(options,
		// The cron loop stays off; the job runs once through the locked path.
		fx.Decorate(func(cfg config.Config) config.Config {
			cfg.Scheduler.Enabled = false
			return cfg
		}),
		fx.Populate(&sched, &log),
	)...)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	err := app.Start(startCtx)
	cancelStart()
	if err != nil {
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	exitCode := 0
	if err := sched.RunNow(ctx, *runOnce); err != nil {
		log.Error("scheduler.run_once.failed", zap.String("job", *runOnce), zap.Error(err))
		exitCode = 1
	} else {
		log.Info("scheduler.run_once.done", zap.String("job", *runOnce))
	}
	cancel()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 30*time.Second)
	if err := app.Stop(stopCtx); err != nil {
		log.Warn("scheduler.run_once.stop_failed", zap.Error(err))
	}
	cancelStop()
	_ = log.Sync()
	os.Exit(exitCode)
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
