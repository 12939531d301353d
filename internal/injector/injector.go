//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"

	"github.com/useframi1/CloudP2P/internal/core/cluster"
	"github.com/useframi1/CloudP2P/internal/core/config"
	"github.com/useframi1/CloudP2P/internal/core/observability/log"
)

func ProvideServer(cfg *config.ServerConfig, logger *log.Logger) *cluster.Server {
	wire.Build(
		provideSensor,
		provideTransform,
		wire.Bind(new(log.Log), new(*log.Logger)),
		cluster.NewServer,
	)
	return nil
}
