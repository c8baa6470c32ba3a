// Package pipeline provides the lead triage bounded context module.
// This file wires the step machine, the dashboard actions and their routes.
package pipeline

import (
	"fmt"
	"time"

	"lead_triage_backend/internal/crm"
	"lead_triage_backend/internal/events"
	apphttp "lead_triage_backend/internal/http"
	"lead_triage_backend/internal/pipeline/calendar"
	"lead_triage_backend/internal/pipeline/checkpoint"
	"lead_triage_backend/internal/pipeline/conversation"
	"lead_triage_backend/internal/pipeline/decision"
	"lead_triage_backend/internal/pipeline/domain"
	"lead_triage_backend/internal/pipeline/drafter"
	"lead_triage_backend/internal/pipeline/enrich"
	"lead_triage_backend/internal/pipeline/handler"
	"lead_triage_backend/internal/pipeline/ingest"
	"lead_triage_backend/internal/pipeline/service"
	"lead_triage_backend/platform/ai/anthropic"
	"lead_triage_backend/platform/ai/openai"
	"lead_triage_backend/platform/config"
	"lead_triage_backend/platform/logger"
	"lead_triage_backend/platform/validator"

	"google.golang.org/adk/model"
)

const drafterTimeout = 5 * time.Minute

// ModuleConfig combines the config interfaces the pipeline needs.
type ModuleConfig interface {
	config.CRMConfig
	config.PipelineConfig
	config.DrafterConfig
}

// Module is the pipeline bounded context module implementing http.Module.
type Module struct {
	handler      *handler.Handler
	orchestrator *service.Orchestrator
	launcher     *service.Launcher
	actions      *service.Actions
}

// NewModule creates and initializes the pipeline module with all its dependencies.
func NewModule(cfg ModuleConfig, store checkpoint.Store, locker checkpoint.Locker, eventBus events.Bus, val *validator.Validator, log *logger.Logger) (*Module, error) {
	cal, err := calendar.New(cfg.GetBusinessTimezone())
	if err != nil {
		return nil, fmt.Errorf("business calendar: %w", err)
	}
	rules, err := decision.LoadRules(cfg.GetTriageRulesFile())
	if err != nil {
		return nil, fmt.Errorf("triage rules: %w", err)
	}
	if err := val.RegisterValidation("ledgerkey", func(v string) bool {
		_, err := domain.ParseLedgerKey(v)
		return err == nil
	}); err != nil {
		return nil, fmt.Errorf("register ledgerkey validation: %w", err)
	}

	stages := domain.DefaultStages()

	// CRM client authenticated with stored OAuth tokens or the PIT fallback
	tokens := crm.NewTokenProvider(cfg, store, log)
	client := crm.New(crm.OptionsFromConfig(cfg), tokens, log)

	orchestrator := service.NewOrchestrator(service.Deps{
		Store:  store,
		Locker: locker,
		Ingestor: ingest.New(client, ingest.Options{
			PipelineID: cfg.GetCRMPipelineID(),
			LocationID: cfg.GetCRMLocationID(),
			Stages:     stages,
		}, log),
		Conversations: conversation.New(client, cfg.GetCRMLocationID(), log),
		Builder:       enrich.NewBuilder(cal, decision.NewEngine(rules)),
		Drafter:       newDrafter(cfg, stages, log),
		EventBus:      eventBus,
	}, service.Options{
		ConversationBatchSize: cfg.GetConversationBatchSize(),
		RecommendBatchSize:    cfg.GetRecommendBatchSize(),
		GateLimit:             cfg.GetCRMMaxConcurrent(),
		LockTTL:               cfg.GetPipelineLockTTL(),
	}, log)

	launcher := service.NewLauncher(orchestrator, nil, log)
	actions := service.NewActions(store, client, stages, cfg.GetCRMEmailFrom(), eventBus, log)

	return &Module{
		handler:      handler.New(orchestrator, launcher, actions, val),
		orchestrator: orchestrator,
		launcher:     launcher,
		actions:      actions,
	}, nil
}

// newDrafter uses the configured provider when it has an API key and the
// rules-only drafter otherwise.
func newDrafter(cfg config.DrafterConfig, stages domain.StageTable, log *logger.Logger) drafter.Drafter {
	if !cfg.IsDrafterEnabled() {
		log.Warn("drafter API key not configured; drafting from rules only", "provider", cfg.GetDrafterProvider())
		return drafter.NewRulesDrafter(stages)
	}

	var llm model.LLM
	switch cfg.GetDrafterProvider() {
	case config.DrafterProviderOpenAI:
		llm = openai.NewModel(openai.Config{
			APIKey:    cfg.GetOpenAIAPIKey(),
			BaseURL:   cfg.GetOpenAIBaseURL(),
			Model:     cfg.GetDrafterModel(),
			MaxTokens: cfg.GetDrafterMaxTokens(),
			Timeout:   drafterTimeout,
		})
	default:
		llm = anthropic.NewModel(anthropic.Config{
			APIKey:    cfg.GetAnthropicAPIKey(),
			BaseURL:   cfg.GetAnthropicBaseURL(),
			Model:     cfg.GetDrafterModel(),
			MaxTokens: cfg.GetDrafterMaxTokens(),
			Timeout:   drafterTimeout,
		})
	}
	log.Info("drafter ready", "provider", cfg.GetDrafterProvider(), "model", llm.Name())
	return drafter.NewLLMDrafter(llm, stages, cfg.GetDrafterMaxTokens(), log)
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "pipeline"
}

// Orchestrator returns the step machine for the worker and the driver command.
func (m *Module) Orchestrator() *service.Orchestrator {
	return m.orchestrator
}

// Launcher returns the run starter used by refresh, cron and the daily trigger.
func (m *Module) Launcher() *service.Launcher {
	return m.launcher
}

// Actions returns the dashboard action service.
func (m *Module) Actions() *service.Actions {
	return m.actions
}

// SetChainer switches refresh and cron to the task queue.
func (m *Module) SetChainer(chain service.Chainer) {
	m.launcher.SetChainer(chain)
}

// RegisterRoutes mounts pipeline routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected, ctx.ActionRateLimiter.RateLimit())

	cron := ctx.V1.Group("")
	cron.Use(ctx.CronMiddleware)
	m.handler.RegisterCronRoutes(cron)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
