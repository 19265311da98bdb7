//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"gocampus/internal/config"
)

// InitializeApplication is expanded by wire into wire_gen.go.
func InitializeApplication(cfg *config.Config) (*Application, func(), error) {
	wire.Build(
		infraSet,
		domainSet,
		realtimeSet,
		ProvideHTTPHandler,
		ProvideGRPCServer,
		wire.Struct(new(Application), "*"),
	)
	return nil, nil, nil
}
