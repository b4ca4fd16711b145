package modelprovider

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/evalmesh/pipeline/internal/domain"
)

// Stub is a deterministic domain.ModelClient for tests and local/dev runs,
// mirroring the teacher's ai/stub.Client: no network calls, a small
// simulated latency, and output derived from the input so repeated runs
// are reproducible.
type Stub struct{}

// NewStub builds a Stub client.
func NewStub() *Stub { return &Stub{} }

// Invoke implements domain.ModelClient without calling any provider.
func (s *Stub) Invoke(_ domain.Context, req domain.GatewayRequest) (domain.InferenceResult, error) {
	entry := resolve(req.TargetModel.Name)
	time.Sleep(10 * time.Millisecond)

	sum := sha256.Sum256([]byte(req.Prompt))
	promptTokens := len(req.Prompt) / 4
	completionTokens := 32
	totalTokens := promptTokens + completionTokens

	return domain.InferenceResult{
		Response:         fmt.Sprintf("stubbed response from %s for prompt hash %x", entry.model, sum[:4]),
		Model:            entry.model,
		LatencyMs:        10,
		PromptTokens:     &promptTokens,
		CompletionTokens: &completionTokens,
		TotalTokens:      &totalTokens,
	}, nil
}
