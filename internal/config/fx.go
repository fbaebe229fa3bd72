package config

import "go.uber.org/fx"

// Module wires application and partitioning configuration.
var Module = fx.Module("config",
	fx.Provide(
		Load,
		NewPartitioningHolder,
	),
)
