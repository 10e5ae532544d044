package email

import (
	"github.com/smallbiznis/duespay/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewSMTPFactory),
	fx.Provide(func(cfg config.Config) *Renderer {
		return NewRenderer(cfg.OrgName)
	}),
)
