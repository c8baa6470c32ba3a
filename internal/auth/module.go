// Package auth provides the operator login module.
// This file defines the module that encapsulates auth setup and route registration.
package auth

import (
	"lead_triage_backend/internal/auth/handler"
	"lead_triage_backend/internal/auth/service"
	apphttp "lead_triage_backend/internal/http"
	"lead_triage_backend/platform/config"
	"lead_triage_backend/platform/logger"
	"lead_triage_backend/platform/validator"
)

// Module is the auth module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates the auth module. secureCookie marks the session cookie
// Secure and should be set outside development.
func NewModule(cfg config.AuthConfig, val *validator.Validator, secureCookie bool, log *logger.Logger) *Module {
	svc := service.New(cfg, log)
	return &Module{
		handler: handler.New(svc, val, secureCookie),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "auth"
}

// RegisterRoutes mounts the public login routes behind the login rate limiter.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	authGroup := ctx.V1.Group("/auth")
	authGroup.Use(ctx.LoginRateLimiter.RateLimit())
	m.handler.RegisterRoutes(authGroup)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
