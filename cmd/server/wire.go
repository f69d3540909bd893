//go:build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/ab/release-server/internal/config"
)

func initServer(cfg config.Config) (*Server, func(), error) {
	wire.Build(
		// infrastructure
		provideLogger,
		provideStorage,
		provideLoader,
		provideAudit,
		provideMetrics,
		provideRateLimiter,

		// http
		provideHandler,
		newServer,
	)
	return nil, nil, nil
}
