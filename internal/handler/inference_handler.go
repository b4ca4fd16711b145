// Package handler implements the three message/request handlers that
// orchestrate the pipeline: InferenceHandler, JudgeHandler, and
// GatewaySubmitter, grounded on the teacher's
// usecase.EvaluateService.Enqueue (submit shape) and
// queue/shared.HandleEvaluate (update-status → call → update-status →
// store shape).
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/evalmesh/pipeline/internal/broker"
	"github.com/evalmesh/pipeline/internal/domain"
	"github.com/evalmesh/pipeline/internal/observability"
)

// InferenceHandler consumes InferenceMessage, invokes the target model,
// and publishes a JudgeMessage — spec.md §4.3's "Inference handler".
type InferenceHandler struct {
	States    domain.StateRepository
	Model     domain.ModelClient
	Publisher domain.Publisher
	Topics    broker.TopicNames
}

// Handle implements domain.Handler.
func (h *InferenceHandler) Handle(ctx domain.Context, msg domain.Message) error {
	lg := observability.LoggerFromContext(ctx)

	var in domain.InferenceMessage
	if err := json.Unmarshal(msg.Body, &in); err != nil {
		return fmt.Errorf("op=handler.Inference: unmarshal: %w", err)
	}

	fail := func(cause error) error {
		reason := cause.Error()
		if _, updErr := h.States.Update(ctx, in.RequestID, func(pr *domain.ProcessedRequest) {
			pr.Stage = domain.StageFailed
			pr.ErrorMessage = &reason
		}); updErr != nil {
			lg.Error("failed to mark state Failed", slog.String("request_id", in.RequestID), slog.Any("error", updErr))
		}
		return fmt.Errorf("op=handler.Inference: %w", cause)
	}

	if _, err := h.States.Update(ctx, in.RequestID, func(pr *domain.ProcessedRequest) {
		pr.Stage = domain.StageInference
	}); err != nil {
		return fail(err)
	}

	result, err := h.Model.Invoke(ctx, in.GatewayRequest)
	if err != nil {
		return fail(err)
	}

	if _, err := h.States.Update(ctx, in.RequestID, func(pr *domain.ProcessedRequest) {
		pr.InferenceResult = &result
	}); err != nil {
		return fail(err)
	}

	judgeMsg := domain.JudgeMessage{
		RequestID:       in.RequestID,
		TopicName:       "judge",
		GatewayRequest:  in.GatewayRequest,
		InferenceResult: result,
	}
	payload, err := json.Marshal(judgeMsg)
	if err != nil {
		return fail(err)
	}
	if err := h.Publisher.Publish(ctx, h.Topics.Judge, payload); err != nil {
		return fail(err)
	}

	lg.Info("inference handled", slog.String("request_id", in.RequestID))
	return nil
}
