// Package http holds the contract between the router and the bounded
// contexts that mount routes on it.
package http

import (
	"lead_triage_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module is a bounded context with HTTP routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext is what a module may attach routes and guards to.
type RouterContext struct {
	// V1 is /api/v1 without authentication.
	V1 *gin.RouterGroup
	// Protected is /api/v1 behind the operator session.
	Protected *gin.RouterGroup
	// CronMiddleware checks the shared cron secret.
	CronMiddleware gin.HandlerFunc
	// LoginRateLimiter is the strict per-IP limiter for sign-in.
	LoginRateLimiter *httpkit.IPRateLimiter
	// ActionRateLimiter throttles routes that reach the CRM on behalf of an operator.
	ActionRateLimiter *httpkit.IPRateLimiter
}
