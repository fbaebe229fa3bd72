package entity

import (
	"context"
	"time"

	"github.com/shoppulse/shoppulse/internal/config"
	"github.com/shoppulse/shoppulse/internal/partition"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the entity registry and provisions the initial partition
// window for every registered table at startup.
var Module = fx.Module("entity",
	fx.Provide(NewRegistry),
	fx.Invoke(provisionStartupWindow),
)

func provisionStartupWindow(
	lc fx.Lifecycle,
	registry *Registry,
	provisioner *partition.Provisioner,
	cfg config.Config,
	log *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			now := time.Now().UTC()
			start := now.AddDate(0, 0, -cfg.PartitionLookbackDays)
			end := now.AddDate(0, 0, cfg.PartitionLookaheadDays)

			for _, desc := range registry.All() {
				if err := provisioner.EnsurePartition(ctx, desc.EventTable, desc.EventGranularity, start, end); err != nil {
					return err
				}
				if err := provisioner.EnsurePartition(ctx, desc.StateTable, desc.StateGranularity, start, end); err != nil {
					return err
				}
			}
			log.Info("startup partitions provisioned",
				zap.Time("from", start),
				zap.Time("to", end),
				zap.Int("entities", len(registry.All())),
			)
			return nil
		},
	})
}
