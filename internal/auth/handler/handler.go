package handler

import (
	"net/http"
	"time"

	"lead_triage_backend/internal/auth/service"
	"lead_triage_backend/internal/auth/transport"
	"lead_triage_backend/platform/httpkit"
	"lead_triage_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type Handler struct {
	svc          *service.Service
	val          *validator.Validator
	secureCookie bool
}

func New(svc *service.Service, val *validator.Validator, secureCookie bool) *Handler {
	return &Handler{svc: svc, val: val, secureCookie: secureCookie}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/login", h.Login)
	rg.POST("/logout", h.Logout)
}

func (h *Handler) Login(c *gin.Context) {
	var req transport.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	session, err := h.svc.SignIn(c.Request.Context(), req.Username, req.Password)
	if httpkit.HandleError(c, err) {
		return
	}

	h.setSessionCookie(c, session.Token, int(h.svc.SessionTTL()/time.Second))
	httpkit.OK(c, transport.LoginResponse{
		AccessToken: session.Token,
		ExpiresAt:   session.ExpiresAt,
	})
}

func (h *Handler) Logout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	httpkit.OK(c, transport.LogoutResponse{Success: true})
}

func (h *Handler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		httpkit.SessionCookieName,
		value,
		maxAge,
		"/",
		"",
		h.secureCookie,
		true,
	)
}
