// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"github.com/gin-gonic/gin"
)

// Operator is the authenticated dashboard user behind a request.
type Operator struct {
	Username  string
	SessionID string
}

// GetOperator returns the operator stored by AuthRequired.
// ok is false on routes that are not behind AuthRequired.
func GetOperator(c *gin.Context) (Operator, bool) {
	username := c.GetString(ContextOperatorKey)
	if username == "" {
		return Operator{}, false
	}
	return Operator{
		Username:  username,
		SessionID: c.GetString(ContextSessionIDKey),
	}, true
}
