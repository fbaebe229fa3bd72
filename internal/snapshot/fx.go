package snapshot

import (
	"github.com/shoppulse/shoppulse/internal/snapshot/service"
	"go.uber.org/fx"
)

var Module = fx.Module("snapshot",
	fx.Provide(service.New),
)
