package main

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shoppulse/shoppulse/internal/clock"
	"github.com/shoppulse/shoppulse/internal/config"
	"github.com/shoppulse/shoppulse/internal/entity"
	"github.com/shoppulse/shoppulse/internal/eventlog"
	"github.com/shoppulse/shoppulse/internal/logger"
	"github.com/shoppulse/shoppulse/internal/migration"
	"github.com/shoppulse/shoppulse/internal/partition"
	"github.com/shoppulse/shoppulse/internal/rollup"
	"github.com/shoppulse/shoppulse/internal/server"
	"github.com/shoppulse/shoppulse/internal/snapshot"
	"github.com/shoppulse/shoppulse/pkg/db"
	"go.uber.org/fx"
)

// The monolith: HTTP ingestion and snapshot APIs plus the background
// rollup worker in one process.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		migration.Module,
		partition.Module,
		entity.Module,
		eventlog.Module,
		snapshot.Module,
		rollup.Module,

		server.Module,
		fx.Invoke(StartWorker),
	)
	app.Run()
}

func StartWorker(lc fx.Lifecycle, w *rollup.Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go w.RunForever(context.Background())
			return nil
		},
	})
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
