package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/harvestline/storefront/internal/alert"
	"github.com/harvestline/storefront/internal/clock"
	"github.com/harvestline/storefront/internal/config"
	"github.com/harvestline/storefront/internal/dedupe"
	"github.com/harvestline/storefront/internal/locks"
	"github.com/harvestline/storefront/internal/logger"
	"github.com/harvestline/storefront/internal/migration"
	obsmetrics "github.com/harvestline/storefront/internal/observability/metrics"
	"github.com/harvestline/storefront/internal/order"
	"github.com/harvestline/storefront/internal/payment"
	"github.com/harvestline/storefront/internal/providers/email"
	"github.com/harvestline/storefront/internal/providers/slack"
	"github.com/harvestline/storefront/internal/server"
	"github.com/harvestline/storefront/internal/shipping"
	"go.uber.org/fx"

	"github.com/harvestline/storefront/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		obsmetrics.Module,
		migration.Module,

		// Domain
		order.Module,
		payment.Module,
		dedupe.Module,
		locks.Module,
		email.Module,
		slack.Module,
		alert.Module,
		shipping.Module,

		// HTTP surface (pulls in the square client and the reconciler)
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
