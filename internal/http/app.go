package http

import (
	"context"

	"lead_triage_backend/platform/config"
	"lead_triage_backend/platform/logger"
)

// RouterConfig is the slice of configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
	config.CronConfig
}

// HealthChecker backs /api/ready. The checkpoint backend implements it.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is assembled by a command's main and handed to router.New.
type App struct {
	Config RouterConfig
	Logger *logger.Logger
	// Health may be nil, in which case readiness always passes.
	Health  HealthChecker
	Modules []Module
}
