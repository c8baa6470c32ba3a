package drafter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lead_triage_backend/internal/pipeline/domain"
	"lead_triage_backend/platform/apperr"
	"lead_triage_backend/platform/logger"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

// LLMDrafter drafts recommendations with a language model.
type LLMDrafter struct {
	llm       model.LLM
	system    string
	maxTokens int32
	log       *logger.Logger
}

// NewLLMDrafter creates a drafter over llm. maxTokens <= 0 keeps the model default.
func NewLLMDrafter(llm model.LLM, stages domain.StageTable, maxTokens int, log *logger.Logger) *LLMDrafter {
	return &LLMDrafter{
		llm:       llm,
		system:    SystemPrompt(stages),
		maxTokens: int32(max(maxTokens, 0)),
		log:       log,
	}
}

// Draft sends one batch to the model and finalizes its answer.
func (d *LLMDrafter) Draft(ctx context.Context, req DraftRequest) (domain.Recommendations, error) {
	if len(req.Leads) == 0 {
		return domain.Recommendations{Actions: []domain.ActionItem{}, NoAction: []domain.NoActionItem{}}, nil
	}

	prompt, err := UserMessage(req)
	if err != nil {
		return domain.Recommendations{}, apperr.Wrap(apperr.KindInternal, "build drafter prompt", err)
	}

	llmReq := &model.LLMRequest{
		Contents: []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		Config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(d.system, genai.RoleUser),
			MaxOutputTokens:   d.maxTokens,
		},
	}

	start := time.Now()
	text, err := d.generate(ctx, llmReq)
	if err != nil {
		return domain.Recommendations{}, apperr.Unavailable("drafter request failed", err).WithOp("drafter.Draft")
	}
	d.log.Info("drafter: batch drafted",
		"model", d.llm.Name(), "leads", len(req.Leads), "chars", len(text), "latencyMs", time.Since(start).Milliseconds())

	return Finalize(text, req.Leads)
}

func (d *LLMDrafter) generate(ctx context.Context, req *model.LLMRequest) (string, error) {
	var text strings.Builder
	for resp, err := range d.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return "", err
		}
		if resp == nil || resp.Content == nil {
			continue
		}
		for _, part := range resp.Content.Parts {
			if part != nil {
				text.WriteString(part.Text)
			}
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty model response")
	}
	return text.String(), nil
}
