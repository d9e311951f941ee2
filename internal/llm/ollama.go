package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/loveucifer/visceral/internal/domain"
)

// OllamaClient implements the LanguageModel interface against a local
// Ollama server
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaClient creates an Ollama-backed language model client
func NewOllamaClient(baseURL, model string, timeout time.Duration) *OllamaClient {
	return &OllamaClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
	}
}

// Generate sends a prompt to the model and returns its completion.
// Deadline overruns map to MODEL_TIMEOUT, connectivity and protocol
// failures to MODEL_UNAVAILABLE.
func (o *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	payload := ollamaGenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: false,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", domain.NewAppErrorWithCause(
			domain.ErrModelUnavailable,
			"Failed to encode model request",
			503,
			err,
			nil,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", domain.NewAppErrorWithCause(
			domain.ErrModelUnavailable,
			"Failed to build model request",
			503,
			err,
			nil,
		)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", domain.NewAppErrorWithCause(
				domain.ErrModelTimeout,
				"Model call exceeded its deadline",
				504,
				err,
				map[string]any{"model": o.model},
			)
		}
		log.Warn().Err(err).Str("base_url", o.baseURL).Msg("Ollama endpoint unreachable")
		return "", domain.NewAppErrorWithCause(
			domain.ErrModelUnavailable,
			"Model endpoint unreachable",
			503,
			err,
			map[string]any{"model": o.model},
		)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", domain.NewAppError(
			domain.ErrModelUnavailable,
			fmt.Sprintf("Model endpoint returned HTTP %d", resp.StatusCode),
			503,
			map[string]any{"model": o.model, "body": string(respBody)},
		)
	}

	var generated ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&generated); err != nil {
		return "", domain.NewAppErrorWithCause(
			domain.ErrModelUnavailable,
			"Failed to decode model response",
			503,
			err,
			map[string]any{"model": o.model},
		)
	}

	return strings.TrimSpace(generated.Response), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
