package eventlog

import (
	"github.com/shoppulse/shoppulse/internal/eventlog/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("eventlog",
	fx.Provide(
		repository.New,
	),
)
