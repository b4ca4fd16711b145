// Package judgeclient implements the Judge Worker's call to the external
// judge service, grounded on the same adapter-plus-stub pattern as
// internal/modelprovider (teacher's internal/adapter/ai family): a thin
// HTTP client behind domain.JudgeClient, backed by exponential retry.
package judgeclient

import (
	"bytes"
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

// Client calls an external judge service over HTTP, implementing
// domain.JudgeClient.
type Client struct {
	baseURL string
	hc      *http.Client
	breaker *observability.CircuitBreaker
}

// New builds a Client pointed at the judge service's base URL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "judgeclient " + r.Method + " " + r.URL.Host
		}),
	)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout, Transport: transport},
		breaker: observability.NewCircuitBreaker("judgeclient", 5, 30*time.Second, 0.5),
	}
}

type judgeRequest struct {
	Prompt     string `json:"prompt"`
	Response   string `json:"response"`
	JudgeModel string `json:"judge_model"`
}

type judgeResponse struct {
	Score      float64            `json:"score"`
	Reasoning  string             `json:"reasoning"`
	Categories map[string]float64 `json:"categories"`
}

// Judge implements domain.JudgeClient: scores a target model's response
// against the original prompt using judgeModel as the grading model.
func (c *Client) Judge(ctx domain.Context, prompt, response string, judgeModel domain.JudgeModel) (domain.JudgeResult, error) {
	if !c.breaker.Allow() {
		return domain.JudgeResult{}, fmt.Errorf("op=judgeclient.Judge: %w: circuit open", domain.ErrInternal)
	}

	reqBody, err := json.Marshal(judgeRequest{Prompt: prompt, Response: response, JudgeModel: judgeModel.Name})
	if err != nil {
		return domain.JudgeResult{}, fmt.Errorf("op=judgeclient.Judge: marshal: %w", err)
	}

	start := time.Now()
	var out judgeResponse

	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = 30 * time.Second
	bo := backoff.WithContext(expo, ctx)

	op := func() error {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/judge", bytes.NewReader(reqBody))
		if err != nil {
			return backoff.Permanent(err)
		}
		r.Header.Set("Content-Type", "application/json")

		resp, err := c.hc.Do(r)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return backoff.Permanent(fmt.Errorf("judge service status %d: %s", resp.StatusCode, body))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("judge service status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	}

	if err := backoff.Retry(op, bo); err != nil {
		c.breaker.RecordFailure()
		observability.ProviderRequestsTotal.WithLabelValues(judgeModel.Name, "error").Inc()
		return domain.JudgeResult{}, fmt.Errorf("op=judgeclient.Judge: %w: %v", domain.ErrInternal, err)
	}
	c.breaker.RecordSuccess()

	latency := time.Since(start)
	observability.ProviderRequestsTotal.WithLabelValues(judgeModel.Name, "ok").Inc()
	observability.ProviderRequestDuration.WithLabelValues(judgeModel.Name).Observe(latency.Seconds())
	observability.JudgeScoreHistogram.Observe(out.Score)

	return domain.JudgeResult{
		Score:      out.Score,
		Reasoning:  out.Reasoning,
		Categories: out.Categories,
		Model:      judgeModel.Name,
		LatencyMs:  float64(latency.Milliseconds()),
	}, nil
}
