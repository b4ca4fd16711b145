// Package modelprovider implements the Inference Worker's dispatch to the
// target model under evaluation, grounded on the teacher's
// internal/adapter/ai family (ai/real, ai/stub): one closed provider
// variant per family behind a single client interface, selected by a
// lookup table keyed on the logical model name clients submit.
package modelprovider

import (
	"fmt"
	"time"

	"github.com/evalmesh/pipeline/internal/domain"
	"github.com/evalmesh/pipeline/internal/observability"
)

// Provider is the closed set of target-model backends.
type Provider string

// Provider values.
const (
	ProviderOpenAI Provider = "openai"
	ProviderGoogle Provider = "google"
	ProviderOllama Provider = "ollama"
)

// modelEntry is one row of the logical-name lookup table.
type modelEntry struct {
	provider Provider
	model    string
}

// lookupTable maps the logical model name a GatewayRequest carries to the
// provider family and concrete model string the real client sends
// upstream. Unknown names fall back to the default entry.
var lookupTable = map[string]modelEntry{
	"ChatGPT":          {ProviderOpenAI, "gpt-3.5-turbo"},
	"GPT-4":            {ProviderOpenAI, "gpt-4"},
	"GPT-4o":           {ProviderOpenAI, "gpt-4o"},
	"GPT-4o-mini":      {ProviderOpenAI, "gpt-4o-mini"},
	"Gemini":           {ProviderGoogle, "gemini-pro"},
	"Gemini-Flash":     {ProviderGoogle, "gemini-1.5-flash"},
	"Gemini-2.5-Flash": {ProviderGoogle, "gemini-2.5-flash"},
	"Gemini-Pro":       {ProviderGoogle, "gemini-1.5-pro"},
}

var defaultEntry = modelEntry{ProviderOpenAI, "gpt-4o-mini"}

// resolve looks up the provider and concrete model for a logical name,
// falling back to defaultEntry for anything not in lookupTable.
func resolve(logicalName string) modelEntry {
	if e, ok := lookupTable[logicalName]; ok {
		return e
	}
	return defaultEntry
}

// Client dispatches an inference call to the target model identified by
// req.TargetModel.Name, implementing domain.ModelClient. Each provider
// family carries its own circuit breaker so a sustained outage in one
// (e.g. Google rate-limiting) doesn't also stop dispatch to the others.
type Client struct {
	openai *httpClient
	google *httpClient
	ollama *httpClient

	breakers map[Provider]*observability.CircuitBreaker
}

// New builds a Client with one real httpClient per provider family, each
// pointed at baseURL/timeout from config. A single TARGET_PROVIDER_BASE_URL
// currently fronts all three families (grounded on the teacher's
// OpenRouter-as-universal-gateway pattern), so they share the same
// endpoint and API key; the split by family exists so the lookup table
// can route to distinct endpoints if that changes.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	c := newHTTPClient(baseURL, apiKey, timeout)
	return &Client{
		openai: c, google: c, ollama: c,
		breakers: map[Provider]*observability.CircuitBreaker{
			ProviderOpenAI: observability.NewCircuitBreaker("modelprovider.openai", 5, 30*time.Second, 0.5),
			ProviderGoogle: observability.NewCircuitBreaker("modelprovider.google", 5, 30*time.Second, 0.5),
			ProviderOllama: observability.NewCircuitBreaker("modelprovider.ollama", 5, 30*time.Second, 0.5),
		},
	}
}

// Invoke implements domain.ModelClient.
func (c *Client) Invoke(ctx domain.Context, req domain.GatewayRequest) (domain.InferenceResult, error) {
	entry := resolve(req.TargetModel.Name)

	var hc *httpClient
	switch entry.provider {
	case ProviderOpenAI:
		hc = c.openai
	case ProviderGoogle:
		hc = c.google
	case ProviderOllama:
		hc = c.ollama
	default:
		return domain.InferenceResult{}, fmt.Errorf("op=modelprovider.Invoke: %w: unknown provider %q", domain.ErrInvalidArgument, entry.provider)
	}

	cb := c.breakers[entry.provider]
	if cb != nil && !cb.Allow() {
		return domain.InferenceResult{}, fmt.Errorf("op=modelprovider.Invoke: %w: circuit open for provider %q", domain.ErrInternal, entry.provider)
	}

	result, err := hc.chat(ctx, entry.model, req.Prompt, req.APIKey)
	if cb != nil {
		if err != nil {
			cb.RecordFailure()
		} else {
			cb.RecordSuccess()
		}
	}
	return result, err
}
