package judgeclient

import (
	"strings"
	"time"

	"github.com/evalmesh/pipeline/internal/domain"
)

// Stub is a deterministic domain.JudgeClient for tests and local/dev runs,
// mirroring the teacher's ai/stub.Client. The score is derived from
// response length so tests can assert on predictable bounds without a
// live judge service.
type Stub struct{}

// NewStub builds a Stub client.
func NewStub() *Stub { return &Stub{} }

// Judge implements domain.JudgeClient without calling any judge service.
func (s *Stub) Judge(_ domain.Context, _, response string, judgeModel domain.JudgeModel) (domain.JudgeResult, error) {
	time.Sleep(10 * time.Millisecond)

	score := 5.0
	switch {
	case len(response) > 200:
		score = 9.0
	case len(response) > 50:
		score = 7.5
	case strings.TrimSpace(response) == "":
		score = 0.0
	}

	return domain.JudgeResult{
		Score:     score,
		Reasoning: "stubbed judge: scored on response length only",
		Categories: map[string]float64{
			"accuracy": score,
			"clarity":  score,
		},
		Model:     judgeModel.Name,
		LatencyMs: 10,
	}, nil
}
