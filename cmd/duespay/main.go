package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/duespay/internal/balance"
	"github.com/smallbiznis/duespay/internal/clock"
	"github.com/smallbiznis/duespay/internal/config"
	"github.com/smallbiznis/duespay/internal/invoice"
	"github.com/smallbiznis/duespay/internal/member"
	"github.com/smallbiznis/duespay/internal/migration"
	"github.com/smallbiznis/duespay/internal/observability"
	"github.com/smallbiznis/duespay/internal/payment"
	"github.com/smallbiznis/duespay/internal/providers"
	"github.com/smallbiznis/duespay/internal/reminder"
	"github.com/smallbiznis/duespay/internal/scheduler"
	"github.com/smallbiznis/duespay/internal/server"
	"github.com/smallbiznis/duespay/internal/settings"
	"github.com/smallbiznis/duespay/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		providers.Module,

		// Functional Domains
		member.Module,
		balance.Module,
		invoice.Module,
		payment.Module,
		settings.Module,
		reminder.Module,
		scheduler.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
