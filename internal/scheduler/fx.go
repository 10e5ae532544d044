package scheduler

import (
	"context"

	"github.com/smallbiznis/duespay/internal/config"
	settingsdomain "github.com/smallbiznis/duespay/internal/settings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(ProvideLocker),
	fx.Provide(New),
	fx.Invoke(Register),
)

// Register ties the scheduler to the app lifecycle and reschedules reminders
// whenever email settings are saved.
func Register(lc fx.Lifecycle, cfg config.Config, sched *Scheduler, settings settingsdomain.Service, log *zap.Logger) {
	if !cfg.Scheduler.Enabled {
		log.Info("scheduler.disabled")
		return
	}

	settings.Subscribe(func(ctx context.Context, updated settingsdomain.EmailSettings) {
		if err := sched.Reschedule(updated); err != nil {
			log.Error("scheduler.reschedule_failed", zap.Error(err))
		}
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sched.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return sched.Stop(ctx)
		},
	})
}
