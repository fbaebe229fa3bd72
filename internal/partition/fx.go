package partition

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the key policy and the provisioner.
var Module = fx.Module("partition",
	fx.Provide(
		func(log *zap.Logger) *Policy { return NewPolicy(log) },
		NewProvisioner,
	),
)
