package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/evalmesh/pipeline/internal/broker"
	"github.com/evalmesh/pipeline/internal/domain"
	"github.com/evalmesh/pipeline/internal/observability"
	"github.com/evalmesh/pipeline/pkg/textx"
)

// GatewaySubmitter implements the synchronous, non-message-driven entry
// point of the pipeline — spec.md §4.3's "Gateway submission" — grounded
// on the teacher's usecase.EvaluateService.Enqueue.
type GatewaySubmitter struct {
	States    domain.StateRepository
	Publisher domain.Publisher
	Topics    broker.TopicNames
}

// Submit creates the initial state record at stage=Gateway and publishes
// an InferenceMessage. It propagates any error from either step without
// compensation: a request never reaches the broker without first existing
// in the state store, and a failed publish leaves the record stuck at
// Gateway, which callers can observe via GET /metadata.
func (g *GatewaySubmitter) Submit(ctx domain.Context, req domain.GatewayRequest) (string, error) {
	lg := observability.LoggerFromContext(ctx)
	requestID := uuid.NewString()
	now := time.Now()

	req.Prompt = textx.SanitizeText(req.Prompt)

	if _, err := g.States.Create(ctx, requestID, domain.ProcessedRequest{
		RequestID:      requestID,
		GatewayRequest: req,
		Stage:          domain.StageGateway,
		CreatedAt:      now,
		UpdatedAt:      now,
	}); err != nil {
		return "", fmt.Errorf("op=handler.Submit: %w", err)
	}

	msg := domain.InferenceMessage{
		RequestID:      requestID,
		TopicName:      "inference",
		GatewayRequest: req,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("op=handler.Submit: %w", err)
	}
	if err := g.Publisher.Publish(ctx, g.Topics.Inference, payload); err != nil {
		return "", fmt.Errorf("op=handler.Submit: %w", err)
	}

	lg.Info("request submitted", slog.String("request_id", requestID))
	return requestID, nil
}
