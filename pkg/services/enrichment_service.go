package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dealdesk-crm/intake-engine/pkg/llm"
)

// Enricher fills optional opportunity fields from the inbound payload.
// Both operations are best-effort: callers consume results in a branch that
// is structurally incapable of aborting ingestion, and an empty result means
// "no suggestion". Implementations must never be a hard dependency.
type Enricher interface {
	// Describe generates a description for an opportunity whose payload has
	// none (or a very short one). Returns "" when no description could be
	// produced.
	Describe(ctx context.Context, mapped map[string]any, payload map[string]any) (string, error)

	// EstimateValue estimates the opportunity's monetary value. Returns 0
	// when no estimate could be produced.
	EstimateValue(ctx context.Context, mapped map[string]any, payload map[string]any) (float64, error)
}

// NoopEnricher is the default Enricher when no LLM endpoint is configured.
type NoopEnricher struct{}

// Describe implements Enricher.
func (NoopEnricher) Describe(ctx context.Context, mapped map[string]any, payload map[string]any) (string, error) {
	return "", nil
}

// EstimateValue implements Enricher.
func (NoopEnricher) EstimateValue(ctx context.Context, mapped map[string]any, payload map[string]any) (float64, error) {
	return 0, nil
}

var _ Enricher = NoopEnricher{}

// llmEnricher implements Enricher against an OpenAI-compatible endpoint.
type llmEnricher struct {
	client  llm.LLMClient
	timeout time.Duration
	logger  *zap.Logger
}

// NewLLMEnricher creates an Enricher backed by an LLM client. Every call is
// bounded by the given timeout.
func NewLLMEnricher(client llm.LLMClient, timeout time.Duration, logger *zap.Logger) Enricher {
	return &llmEnricher{
		client:  client,
		timeout: timeout,
		logger:  logger.Named("enrichment"),
	}
}

var _ Enricher = (*llmEnricher)(nil)

const describeSystemMessage = "You write short, factual sales-opportunity descriptions. " +
	"Respond with 2-4 plain sentences in the language of the inbound message. No markdown, no preamble."

func (e *llmEnricher) Describe(ctx context.Context, mapped map[string]any, payload map[string]any) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt, err := enrichmentPrompt("Describe this inbound sales opportunity.", mapped, payload)
	if err != nil {
		return "", err
	}

	resp, err := e.client.GenerateResponse(ctx, prompt, describeSystemMessage, 0.3)
	if err != nil {
		return "", fmt.Errorf("generate description: %w", err)
	}

	return resp, nil
}

const estimateSystemMessage = "You estimate the monetary value of sales opportunities. " +
	`Respond with JSON only: {"value": <number in euros, 0 if unknown>}.`

func (e *llmEnricher) EstimateValue(ctx context.Context, mapped map[string]any, payload map[string]any) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt, err := enrichmentPrompt("Estimate the value of this inbound sales opportunity.", mapped, payload)
	if err != nil {
		return 0, err
	}

	resp, err := e.client.GenerateResponse(ctx, prompt, estimateSystemMessage, 0)
	if err != nil {
		return 0, fmt.Errorf("generate value estimate: %w", err)
	}

	parsed, err := llm.ParseJSONResponse[struct {
		Value float64 `json:"value"`
	}](resp)
	if err != nil {
		e.logger.Debug("Unparseable value estimate", zap.String("response", resp))
		return 0, fmt.Errorf("parse value estimate: %w", err)
	}

	if parsed.Value < 0 {
		return 0, nil
	}
	return parsed.Value, nil
}

func enrichmentPrompt(instruction string, mapped map[string]any, payload map[string]any) (string, error) {
	mappedJSON, err := json.Marshal(mapped)
	if err != nil {
		return "", fmt.Errorf("marshal mapped fields: %w", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return fmt.Sprintf("%s\n\nMapped fields:\n%s\n\nRaw payload:\n%s", instruction, mappedJSON, payloadJSON), nil
}
