//go:build wireinject
// +build wireinject

package di

import (
	"SigTrail/pkg/config"
	"SigTrail/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Foundation
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideArchive,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories and collaborators
		ProvideSignalStore,
		ProvideMarketData,
		ProvidePublisher,
		ProvidePriceStream,
		ProvideNarrative,
		ProvideNotifier,

		// Use cases
		ProvideSnapshotBuilder,
		ProvideTracker,
		ProvideRetryPublisher,
		ProvideEvaluator,
		ProvideRetryConsumer,
		ProvideInsights,
		ProvideExecutionsHandler,

		// HTTP and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
