package modelprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/evalmesh/pipeline/internal/domain"
	"github.com/evalmesh/pipeline/internal/observability"
)

// httpClient is a minimal OpenAI-compatible chat-completions client,
// grounded on the retry/timeout shape of the teacher's ai/real.Client but
// stripped of the multi-account/model-switching machinery that has no
// counterpart in this domain (one target model per request, not a pool of
// free models to rotate through).
type httpClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

func newHTTPClient(baseURL, apiKey string, timeout time.Duration) *httpClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "modelprovider " + r.Method + " " + r.URL.Host
		}),
	)
	return &httpClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: timeout, Transport: transport},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// chat calls POST {baseURL}/chat/completions with a single-turn prompt and
// returns the response content plus latency, retrying transient failures
// with exponential backoff.
func (c *httpClient) chat(ctx context.Context, model, prompt, apiKey string) (domain.InferenceResult, error) {
	key := apiKey
	if key == "" {
		key = c.apiKey
	}

	reqBody, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return domain.InferenceResult{}, fmt.Errorf("op=modelprovider.chat: marshal: %w", err)
	}

	start := time.Now()
	var out chatResponse

	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = 30 * time.Second
	bo := backoff.WithContext(expo, ctx)

	op := func() error {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
		if err != nil {
			return backoff.Permanent(err)
		}
		r.Header.Set("Authorization", "Bearer "+key)
		r.Header.Set("Content-Type", "application/json")

		resp, err := c.hc.Do(r)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return backoff.Permanent(fmt.Errorf("provider status %d: %s", resp.StatusCode, body))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("provider status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	}

	if err := backoff.Retry(op, bo); err != nil {
		observability.ProviderRequestsTotal.WithLabelValues(model, "error").Inc()
		return domain.InferenceResult{}, fmt.Errorf("op=modelprovider.chat: %w: %v", domain.ErrInternal, err)
	}
	if len(out.Choices) == 0 {
		observability.ProviderRequestsTotal.WithLabelValues(model, "error").Inc()
		return domain.InferenceResult{}, fmt.Errorf("op=modelprovider.chat: %w: empty choices", domain.ErrInternal)
	}

	latency := time.Since(start)
	observability.ProviderRequestsTotal.WithLabelValues(model, "ok").Inc()
	observability.ProviderRequestDuration.WithLabelValues(model).Observe(latency.Seconds())

	promptTokens, completionTokens, totalTokens := out.Usage.PromptTokens, out.Usage.CompletionTokens, out.Usage.TotalTokens
	result := domain.InferenceResult{
		Response:  out.Choices[0].Message.Content,
		Model:     model,
		LatencyMs: float64(latency.Milliseconds()),
	}
	if totalTokens > 0 {
		result.PromptTokens = &promptTokens
		result.CompletionTokens = &completionTokens
		result.TotalTokens = &totalTokens
	}
	return result, nil
}
