//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/Sternrassler/stockhub-client/pkg/config"
)

// InitializeApp wires up all dependencies and returns the application and a
// cleanup that releases the durable store.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*App, func(), error) {
	wire.Build(
		ProvideLogger,

		// Infrastructure
		ProvideStore,
		ProvideTiered,
		ProvideQueue,

		// Backend access
		ProvideCredentials,
		ProvideTracker,
		ProvideClient,

		// Data access layer and facade
		ProvideOrchestrator,
		ProvideServer,

		ProvideApp,
	)
	return &App{}, nil, nil
}
