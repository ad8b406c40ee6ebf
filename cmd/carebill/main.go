package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/migration"
	"github.com/smallbiznis/carebill/internal/observability"
	"github.com/smallbiznis/carebill/internal/server"
	"github.com/smallbiznis/carebill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP API and the domain modules behind it
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
