package handler

import (
	"net/http"
	"strconv"

	"lead_triage_backend/internal/pipeline/domain"
	"lead_triage_backend/internal/pipeline/service"
	"lead_triage_backend/internal/pipeline/transport"
	"lead_triage_backend/platform/apperr"
	"lead_triage_backend/platform/httpkit"
	"lead_triage_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidKey       = "invalid action key"
	msgPipelineStarted  = "Pipeline started"
)

// Handler serves the pipeline and dashboard action routes.
type Handler struct {
	orchestrator *service.Orchestrator
	launcher     *service.Launcher
	actions      *service.Actions
	val          *validator.Validator
}

// New creates the handler.
func New(orchestrator *service.Orchestrator, launcher *service.Launcher, actions *service.Actions, val *validator.Validator) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		launcher:     launcher,
		actions:      actions,
		val:          val,
	}
}

// RegisterRoutes mounts the operator routes on an authenticated group.
// limited wraps routes that reach the CRM.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, limited gin.HandlerFunc) {
	rg.GET("/pipeline", h.Status)
	rg.POST("/pipeline", h.RunStep)
	rg.POST("/pipeline/refresh", h.Refresh)

	rg.GET("/actions", h.Dashboard)
	rg.GET("/status", h.Ledger)
	rg.POST("/status", h.MergeLedger)

	rg.POST("/send/:key", limited, h.Send)
	rg.POST("/move/:id", limited, h.Move)
	rg.POST("/note/:id", limited, h.Note)
	rg.POST("/dismiss/:key", h.Dismiss)
}

// RegisterCronRoutes mounts the machine trigger.
func (h *Handler) RegisterCronRoutes(rg *gin.RouterGroup) {
	rg.GET("/cron", h.Refresh)
}

func (h *Handler) Status(c *gin.Context) {
	state, err := h.orchestrator.Status(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, state)
}

func (h *Handler) RunStep(c *gin.Context) {
	var q transport.StepQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	step, _ := domain.ParseStep(q.Step)
	result, err := h.orchestrator.RunStep(c.Request.Context(), domain.StepRequest{
		Step:   step,
		RunID:  q.RunID,
		Offset: q.Offset,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) Refresh(c *gin.Context) {
	launch, err := h.launcher.Start(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.LaunchResponse{
		Success: true,
		Message: msgPipelineStarted,
		RunID:   launch.RunID,
		Mode:    launch.Mode,
	})
}

func (h *Handler) Dashboard(c *gin.Context) {
	dash, err := h.actions.Dashboard(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, dash)
}

func (h *Handler) Ledger(c *gin.Context) {
	ledger, err := h.actions.Ledger(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, ledger)
}

func (h *Handler) MergeLedger(c *gin.Context) {
	var req transport.LedgerPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Var(req, "dive,keys,ledgerkey,endkeys"); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidKey, nil)
		return
	}

	patch := make(domain.Ledger, len(req))
	for raw, entry := range req {
		if err := h.val.Struct(entry); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, map[string]any{raw: validator.FieldErrors(err)})
			return
		}
		key, _ := domain.ParseLedgerKey(raw)
		patch[key] = domain.LedgerEntry{Status: domain.LedgerStatus(entry.Status), TS: entry.TS}
	}

	if _, err := h.actions.MergeLedger(c.Request.Context(), patch); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SuccessResponse{Success: true})
}

func (h *Handler) Send(c *gin.Context) {
	key, ok := h.ledgerKey(c)
	if !ok {
		return
	}
	if key.Channel != domain.ChannelDefault && key.Channel != domain.ChannelSMS && key.Channel != domain.ChannelEmail {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidKey, nil)
		return
	}

	var req transport.SendRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	result, err := h.actions.Send(c.Request.Context(), key, service.SendInput{
		Type:    req.Type,
		Subject: req.Subject,
		HTML:    req.HTML,
		Message: req.Message,
	}, operatorName(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) Move(c *gin.Context) {
	id, ok := actionID(c)
	if !ok {
		return
	}
	var req transport.MoveRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	if err := h.actions.Move(c.Request.Context(), id, req.TargetStageID, operatorName(c)); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SuccessResponse{Success: true})
}

func (h *Handler) Note(c *gin.Context) {
	id, ok := actionID(c)
	if !ok {
		return
	}
	var req transport.NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	err := h.actions.Note(c.Request.Context(), id, req.Body, domain.Channel(req.Kind), operatorName(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SuccessResponse{Success: true})
}

func (h *Handler) Dismiss(c *gin.Context) {
	key, ok := h.ledgerKey(c)
	if !ok {
		return
	}
	if err := h.actions.Dismiss(c.Request.Context(), key, operatorName(c)); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SuccessResponse{Success: true})
}

func (h *Handler) ledgerKey(c *gin.Context) (domain.LedgerKey, bool) {
	key, err := domain.ParseLedgerKey(c.Param("key"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidKey, nil)
		return domain.LedgerKey{}, false
	}
	return key, true
}

// bindOptionalJSON accepts an empty body as the zero request.
func (h *Handler) bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(dst); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return false
		}
	}
	if err := h.val.Struct(dst); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return false
	}
	return true
}

func actionID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		httpkit.HandleError(c, apperr.BadRequest(msgInvalidKey))
		return 0, false
	}
	return id, true
}

func operatorName(c *gin.Context) string {
	op, _ := httpkit.GetOperator(c)
	return op.Username
}
