package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loveucifer/visceral/internal/agent"
	"github.com/loveucifer/visceral/internal/cache"
	"github.com/loveucifer/visceral/internal/domain"
	"github.com/loveucifer/visceral/internal/health"
	"github.com/loveucifer/visceral/internal/matcher"
	"github.com/loveucifer/visceral/internal/repository"
	"github.com/loveucifer/visceral/internal/scoring"
	"github.com/loveucifer/visceral/internal/storage"
	"github.com/loveucifer/visceral/internal/synth"
)

// scriptedModel returns canned replies in order, then repeats the last one
type scriptedModel struct {
	replies []string
	err     error
	calls   int
}

func (m *scriptedModel) Generate(ctx context.Context, prompt string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "model answer", nil
	}
	idx := m.calls - 1
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	return m.replies[idx], nil
}

type testServer struct {
	app   *fiber.App
	repo  *repository.Repository
	model *scriptedModel
}

func newTestServer(t *testing.T, model *scriptedModel) *testServer {
	t.Helper()

	store := storage.NewFileStore(filepath.Join(t.TempDir(), "rules.json"))
	scorer := scoring.NewUpdater(scoring.DefaultPolicy())
	m := matcher.NewMatcher()
	repo := repository.NewRepository(store, m, scorer)
	require.NoError(t, repo.Load(context.Background()))

	lru := cache.NewLRUCache(64)
	synthesizer := synth.NewSynthesizer(model, repo, scorer, 2)
	controller := agent.NewController(repo, m, scorer, synthesizer, model, lru)
	healthChecker := health.NewSystemHealthChecker(repo, lru)

	result := SetupRouter(RouterDependencies{
		Controller:    controller,
		Repository:    repo,
		Cache:         lru,
		Validator:     domain.NewValidator(),
		HealthChecker: healthChecker,
	}, RouterConfig{
		BodyLimit: 1024 * 1024,
	})
	t.Cleanup(result.Cleanup)

	return &testServer{app: result.App, repo: repo, model: model}
}

func (s *testServer) addRule(t *testing.T, pattern, response string, score float64) *domain.Rule {
	t.Helper()
	rule := &domain.Rule{
		ID:       uuid.New().String(),
		Pattern:  pattern,
		Response: response,
		Score:    score,
	}
	require.NoError(t, s.repo.Add(context.Background(), rule))
	return rule
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	return resp, decodeBody(t, resp)
}

func getJSON(t *testing.T, app *fiber.App, path string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(raw, &parsed), "body: %s", string(raw))
	return parsed
}

func TestQueryHandler_AnsweredByRule(t *testing.T) {
	s := newTestServer(t, &scriptedModel{})
	rule := s.addRule(t, "refund+policy", "Refunds take 5 business days.", 4)

	resp, body := postJSON(t, s.app, "/v1/query", map[string]string{"query": "what is the refund policy"})
	assert.Equal(t, 200, resp.StatusCode)

	data := body["data"].(map[string]any)
	assert.Equal(t, rule.Response, data["response"])
	assert.Equal(t, rule.ID, data["rule_id"])
	assert.Equal(t, "answered-by-rule", data["status"])
	assert.NotEmpty(t, data["turn_id"])
}

func TestQueryHandler_AnsweredByFallback(t *testing.T) {
	s := newTestServer(t, &scriptedModel{replies: []string{"A generated answer."}})

	resp, body := postJSON(t, s.app, "/v1/query", map[string]string{"query": "anything"})
	assert.Equal(t, 200, resp.StatusCode)

	data := body["data"].(map[string]any)
	assert.Equal(t, "A generated answer.", data["response"])
	assert.Equal(t, "answered-by-fallback", data["status"])
}

func TestQueryHandler_InvalidJSON(t *testing.T) {
	s := newTestServer(t, &scriptedModel{})

	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader([]byte("{broken")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, 400, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, domain.ErrInvalidInput, body["code"])
}

func TestQueryHandler_EmptyQuery(t *testing.T) {
	s := newTestServer(t, &scriptedModel{})

	resp, body := postJSON(t, s.app, "/v1/query", map[string]string{"query": "   "})
	assert.Equal(t, 422, resp.StatusCode)
	assert.Equal(t, domain.ErrValidationFailed, body["code"])
}

func TestQueryHandler_ModelUnavailable(t *testing.T) {
	s := newTestServer(t, &scriptedModel{
		err: domain.NewAppError(domain.ErrModelUnavailable, "down", 503, nil),
	})

	resp, body := postJSON(t, s.app, "/v1/query", map[string]string{"query": "anything"})
	assert.Equal(t, 503, resp.StatusCode)
	assert.Equal(t, domain.ErrModelUnavailable, body["code"])
}

func TestFeedbackHandler_Positive(t *testing.T) {
	s := newTestServer(t, &scriptedModel{})
	s.addRule(t, "refund", "Answer.", 2)

	_, queryBody := postJSON(t, s.app, "/v1/query", map[string]string{"query": "refund"})
	turnID := queryBody["data"].(map[string]any)["turn_id"].(string)

	resp, body := postJSON(t, s.app, "/v1/feedback", map[string]string{
		"turn_id":   turnID,
		"sentiment": "positive",
	})
	assert.Equal(t, 200, resp.StatusCode)

	data := body["data"].(map[string]any)
	assert.Equal(t, "feedback-recorded", data["status"])

	rule := data["rule"].(map[string]any)
	assert.Equal(t, float64(3), rule["score"])
}

func TestFeedbackHandler_CorrectionSynthesizesRule(t *testing.T) {
	s := newTestServer(t, &scriptedModel{replies: []string{
		"I don't know.",
		"Pattern: refund+policy\nResponse: Refunds take 5 business days.",
	}})

	_, queryBody := postJSON(t, s.app, "/v1/query", map[string]string{"query": "what is the refund policy"})
	turnID := queryBody["data"].(map[string]any)["turn_id"].(string)

	resp, body := postJSON(t, s.app, "/v1/feedback", map[string]string{
		"turn_id":    turnID,
		"sentiment":  "negative",
		"correction": "Refunds take 5 business days.",
	})
	assert.Equal(t, 201, resp.StatusCode)

	data := body["data"].(map[string]any)
	assert.Equal(t, "rule-synthesized", data["status"])

	rule := data["rule"].(map[string]any)
	assert.Equal(t, "refund+policy", rule["pattern"])
	assert.Equal(t, 1, s.repo.Count())
}

func TestFeedbackHandler_UnknownTurn(t *testing.T) {
	s := newTestServer(t, &scriptedModel{})

	resp, body := postJSON(t, s.app, "/v1/feedback", map[string]string{
		"turn_id":   uuid.New().String(),
		"sentiment": "positive",
	})
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, domain.ErrNotFound, body["code"])
}

func TestFeedbackHandler_InvalidSentiment(t *testing.T) {
	s := newTestServer(t, &scriptedModel{})

	resp, body := postJSON(t, s.app, "/v1/feedback", map[string]string{
		"turn_id":   uuid.New().String(),
		"sentiment": "meh",
	})
	assert.Equal(t, 422, resp.StatusCode)
	assert.Equal(t, domain.ErrValidationFailed, body["code"])
}

func TestExplainHandler(t *testing.T) {
	s := newTestServer(t, &scriptedModel{})
	rule := s.addRule(t, "refund", "Answer.", 2)

	_, queryBody := postJSON(t, s.app, "/v1/query", map[string]string{"query": "refund"})
	turnID := queryBody["data"].(map[string]any)["turn_id"].(string)

	resp, body := getJSON(t, s.app, fmt.Sprintf("/v1/turns/%s/explanation", turnID))
	assert.Equal(t, 200, resp.StatusCode)

	data := body["data"].(map[string]any)
	assert.Contains(t, data["explanation"], rule.ID)
}

func TestExplainHandler_UnknownTurn(t *testing.T) {
	s := newTestServer(t, &scriptedModel{})

	resp, body := getJSON(t, s.app, "/v1/turns/absent/explanation")
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, domain.ErrNotFound, body["code"])
}

func TestListRulesHandler(t *testing.T) {
	s := newTestServer(t, &scriptedModel{})
	s.addRule(t, "refund+policy", "Policy answer.", 2)
	s.addRule(t, "shipping", "Shipping answer.", 2)

	resp, body := getJSON(t, s.app, "/v1/rules")
	assert.Equal(t, 200, resp.StatusCode)

	data := body["data"].(map[string]any)
	assert.Equal(t, float64(2), data["count"])
}

func TestListRulesHandler_FilterByQuery(t *testing.T) {
	s := newTestServer(t, &scriptedModel{})
	s.addRule(t, "refund+policy", "Policy answer.", 2)
	s.addRule(t, "shipping", "Shipping answer.", 2)

	resp, body := getJSON(t, s.app, "/v1/rules?q=what+is+the+refund+policy")
	assert.Equal(t, 200, resp.StatusCode)

	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["count"])
}

func TestCreateRuleHandler(t *testing.T) {
	s := newTestServer(t, &scriptedModel{})

	resp, body := postJSON(t, s.app, "/v1/rules", map[string]any{
		"pattern":  "warranty",
		"response": "Warranty lasts two years.",
		"score":    3,
	})
	assert.Equal(t, 201, resp.StatusCode)

	rule := body["data"].(map[string]any)["rule"].(map[string]any)
	assert.NotEmpty(t, rule["id"])
	assert.Equal(t, "warranty", rule["pattern"])
	assert.Equal(t, 1, s.repo.Count())
}

func TestCreateRuleHandler_Invalid(t *testing.T) {
	s := newTestServer(t, &scriptedModel{})

	resp, body := postJSON(t, s.app, "/v1/rules", map[string]any{
		"pattern":  "",
		"response": "Answer.",
	})
	assert.Equal(t, 422, resp.StatusCode)
	assert.Equal(t, domain.ErrValidationFailed, body["code"])
}

func TestCreateRuleHandler_DuplicatePattern(t *testing.T) {
	s := newTestServer(t, &scriptedModel{})
	s.addRule(t, "warranty", "Existing.", 2)

	resp, body := postJSON(t, s.app, "/v1/rules", map[string]any{
		"pattern":  "warranty",
		"response": "New.",
	})
	assert.Equal(t, 409, resp.StatusCode)
	assert.Equal(t, domain.ErrDuplicatePattern, body["code"])
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, &scriptedModel{})
	s.addRule(t, "refund", "Answer.", 2)

	resp, body := getJSON(t, s.app, "/health")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, domain.HealthStatusHealthy, body["status"])
	assert.Contains(t, body, "components")
}

func TestMetricsHandler(t *testing.T) {
	s := newTestServer(t, &scriptedModel{})
	s.addRule(t, "refund", "Answer.", 2)

	resp, body := getJSON(t, s.app, "/metrics")
	assert.Equal(t, 200, resp.StatusCode)

	data := body["data"].(map[string]any)
	assert.Contains(t, data, "cache")
	rules := data["rules"].(map[string]any)
	assert.Equal(t, float64(1), rules["rule_count"])
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, &scriptedModel{})

	resp, _ := getJSON(t, s.app, "/health")
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}
