package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/loveucifer/visceral/internal/domain"
)

// AgentController defines the turn-level operations the API exposes
type AgentController interface {
	Ask(ctx context.Context, query string) (*domain.Turn, error)
	Feedback(ctx context.Context, fb domain.Feedback) (*domain.Turn, *domain.Rule, error)
	Explain(ctx context.Context, turnID string) (string, error)
}

// Handlers contains all HTTP handlers for the agent API
type Handlers struct {
	controller    AgentController
	repository    domain.RuleRepository
	cache         domain.ResultCache
	validator     domain.Validator
	healthChecker domain.HealthChecker
}

// NewHandlers creates a new instance of API handlers
func NewHandlers(controller AgentController, repository domain.RuleRepository, cache domain.ResultCache, validator domain.Validator, healthChecker domain.HealthChecker) *Handlers {
	return &Handlers{
		controller:    controller,
		repository:    repository,
		cache:         cache,
		validator:     validator,
		healthChecker: healthChecker,
	}
}

// QueryRequest represents the request payload for the query endpoint
type QueryRequest struct {
	Query string `json:"query" validate:"required,min=1,max=4096" example:"what is your refund policy"`
}

// QueryResponse represents the response payload for the query endpoint
type QueryResponse struct {
	TurnID   string `json:"turn_id" example:"123e4567-e89b-12d3-a456-426614174000"`
	Response string `json:"response" example:"Refunds are processed within 5 business days."`
	RuleID   string `json:"rule_id,omitempty"`
	Status   string `json:"status" example:"answered-by-rule"`
}

// FeedbackRequest represents the request payload for the feedback endpoint
type FeedbackRequest struct {
	TurnID     string `json:"turn_id" validate:"required" example:"123e4567-e89b-12d3-a456-426614174000"`
	Sentiment  string `json:"sentiment" validate:"required,oneof=positive negative" example:"negative"`
	Correction string `json:"correction,omitempty" example:"Refunds take 5 business days."`
}

// ErrorResponse represents the standard error response format
type ErrorResponse struct {
	Status  string `json:"status" example:"error"`
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Invalid input provided"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse represents the standard success response format
type SuccessResponse struct {
	Status string `json:"status" example:"success"`
	Data   any    `json:"data"`
}

// QueryHandler handles POST /v1/query requests. The query is matched against
// the rule collection; when no rule applies the language model answers.
func (h *Handlers) QueryHandler(c *fiber.Ctx) error {
	ctx := c.Context()
	requestID := ""
	if rid := c.Locals("requestid"); rid != nil {
		requestID = rid.(string)
	}

	var req QueryRequest
	if err := c.BodyParser(&req); err != nil {
		appErr := domain.NewAppError(
			domain.ErrInvalidInput,
			"Invalid JSON payload",
			400,
			map[string]string{"error": err.Error()},
		).WithContext(ctx, "query_request_parsing")

		return h.sendError(c, appErr)
	}

	req.Query = strings.TrimSpace(req.Query)
	if err := h.validator.ValidateQuery(req.Query); err != nil {
		return h.sendError(c, h.asAppError(err).WithContext(ctx, "query_request_validation"))
	}

	turn, err := h.controller.Ask(ctx, req.Query)
	if err != nil {
		log.Error().
			Err(err).
			Str("query", req.Query).
			Str("request_id", requestID).
			Msg("Failed to answer query")

		return h.sendError(c, h.asAppError(err).WithContext(ctx, "query_resolution"))
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: QueryResponse{
			TurnID:   turn.ID,
			Response: turn.Response,
			RuleID:   turn.RuleID,
			Status:   string(turn.Status),
		},
	})
}

// FeedbackHandler handles POST /v1/feedback requests. Positive feedback
// reinforces the answering rule, negative feedback penalizes it, and negative
// feedback with a correction synthesizes a new rule.
func (h *Handlers) FeedbackHandler(c *fiber.Ctx) error {
	ctx := c.Context()
	requestID := ""
	if rid := c.Locals("requestid"); rid != nil {
		requestID = rid.(string)
	}

	var req FeedbackRequest
	if err := c.BodyParser(&req); err != nil {
		appErr := domain.NewAppError(
			domain.ErrInvalidInput,
			"Invalid JSON payload",
			400,
			map[string]string{"error": err.Error()},
		).WithContext(ctx, "feedback_request_parsing")

		return h.sendError(c, appErr)
	}

	req.TurnID = strings.TrimSpace(req.TurnID)
	req.Sentiment = strings.TrimSpace(strings.ToLower(req.Sentiment))
	req.Correction = strings.TrimSpace(req.Correction)

	if req.TurnID == "" {
		return h.sendError(c, domain.NewAppError(
			domain.ErrValidationFailed,
			"Turn ID is required",
			422,
			map[string]string{"field": "turn_id", "reason": "required"},
		))
	}
	if req.Sentiment != string(domain.SentimentPositive) && req.Sentiment != string(domain.SentimentNegative) {
		return h.sendError(c, domain.NewAppError(
			domain.ErrValidationFailed,
			"Sentiment must be positive or negative",
			422,
			map[string]string{"field": "sentiment", "reason": "oneof=positive negative"},
		))
	}

	turn, rule, err := h.controller.Feedback(ctx, domain.Feedback{
		TurnID:     req.TurnID,
		Sentiment:  domain.Sentiment(req.Sentiment),
		Correction: req.Correction,
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("turn_id", req.TurnID).
			Str("sentiment", req.Sentiment).
			Str("request_id", requestID).
			Msg("Failed to resolve feedback")

		return h.sendError(c, h.asAppError(err).WithContext(ctx, "feedback_resolution"))
	}

	data := map[string]any{
		"turn_id": turn.ID,
		"status":  string(turn.Status),
	}
	if rule != nil {
		data["rule"] = rule
	}

	status := 200
	if turn.Status == domain.StatusRuleSynthesized {
		status = 201
	}

	return c.Status(status).JSON(SuccessResponse{
		Status: "success",
		Data:   data,
	})
}

// ExplainHandler handles GET /v1/turns/:id/explanation requests
func (h *Handlers) ExplainHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	turnID := strings.TrimSpace(c.Params("id"))
	if turnID == "" {
		return h.sendError(c, domain.NewAppError(
			domain.ErrValidationFailed,
			"Turn ID is required",
			422,
			map[string]string{"field": "id", "reason": "required"},
		))
	}

	explanation, err := h.controller.Explain(ctx, turnID)
	if err != nil {
		return h.sendError(c, h.asAppError(err).WithContext(ctx, "turn_explanation"))
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"turn_id":     turnID,
			"explanation": explanation,
		},
	})
}

// ListRulesHandler handles GET /v1/rules requests. An optional ?q= parameter
// narrows the listing to rules whose condition the query satisfies.
func (h *Handlers) ListRulesHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	var rules []domain.Rule
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		rules = h.repository.FindMatching(ctx, q)
	} else {
		rules = h.repository.All(ctx)
	}

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"rules": rules,
			"count": len(rules),
		},
	})
}

// CreateRuleHandler handles POST /v1/rules requests for manual rule authoring
func (h *Handlers) CreateRuleHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	var rule domain.Rule
	if err := c.BodyParser(&rule); err != nil {
		appErr := domain.NewAppError(
			domain.ErrInvalidInput,
			"Invalid JSON payload",
			400,
			map[string]string{"error": err.Error()},
		).WithContext(ctx, "create_rule_parsing")

		return h.sendError(c, appErr)
	}

	rule.Pattern = strings.TrimSpace(rule.Pattern)
	rule.Response = strings.TrimSpace(rule.Response)

	// Auto-generate ID if not provided
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	if err := h.validator.ValidateRule(&rule); err != nil {
		return h.sendError(c, h.asAppError(err).WithContext(ctx, "create_rule_validation"))
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.LastUsed = now
	rule.Stats = domain.RuleStats{}

	if err := h.repository.Add(ctx, &rule); err != nil {
		log.Error().Err(err).Str("rule_id", rule.ID).Str("pattern", rule.Pattern).Msg("Failed to create rule")
		return h.sendError(c, h.asAppError(err).WithContext(ctx, "create_rule_persistence"))
	}

	h.cache.Clear()

	return c.Status(201).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"rule": rule,
		},
	})
}

// HealthHandler handles GET /health requests
func (h *Handlers) HealthHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	health := h.healthChecker.CheckHealth(ctx)

	status := 200
	if health.Status == domain.HealthStatusUnhealthy {
		status = 503
	}

	return c.Status(status).JSON(map[string]any{
		"status":     health.Status,
		"timestamp":  health.Timestamp.Format(time.RFC3339),
		"components": health.Components,
		"uptime":     health.Uptime.String(),
	})
}

// MetricsHandler handles GET /metrics requests
func (h *Handlers) MetricsHandler(c *fiber.Ctx) error {
	ctx := c.Context()

	cacheStats := h.cache.Stats()
	repoStats := h.repository.GetStats(ctx)

	return c.Status(200).JSON(SuccessResponse{
		Status: "success",
		Data: map[string]any{
			"cache": map[string]any{
				"hits":      cacheStats.Hits,
				"misses":    cacheStats.Misses,
				"size":      cacheStats.Size,
				"max_size":  cacheStats.MaxSize,
				"hit_ratio": cacheStats.HitRatio,
			},
			"rules": repoStats,
			"uptime": map[string]any{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			},
		},
	})
}

// asAppError coerces any error into an AppError for response shaping
func (h *Handlers) asAppError(err error) *domain.AppError {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return domain.NewAppErrorWithCause(
		domain.ErrInternal,
		"Internal server error",
		500,
		err,
		nil,
	)
}

// sendError sends a standardized error response
func (h *Handlers) sendError(c *fiber.Ctx, appErr *domain.AppError) error {
	return c.Status(appErr.StatusCode).JSON(ErrorResponse{
		Status:  "error",
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}
