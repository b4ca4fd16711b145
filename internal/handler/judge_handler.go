package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/evalmesh/pipeline/internal/domain"
	"github.com/evalmesh/pipeline/internal/observability"
)

// JudgeHandler consumes JudgeMessage, invokes the judge gateway, and
// writes the terminal archive row — spec.md §4.3's "Judge handler". Only
// this handler ever writes to the archive (resolving spec.md §9's first
// Open Question the way the teacher's single-archive-write-site pattern
// does it); the Inference handler never archives.
type JudgeHandler struct {
	States  domain.StateRepository
	Judge   domain.JudgeClient
	Archive domain.ArchiveRepository
}

// Handle implements domain.Handler.
func (h *JudgeHandler) Handle(ctx domain.Context, msg domain.Message) error {
	lg := observability.LoggerFromContext(ctx)

	var in domain.JudgeMessage
	if err := json.Unmarshal(msg.Body, &in); err != nil {
		return fmt.Errorf("op=handler.Judge: unmarshal: %w", err)
	}

	if _, err := h.States.Update(ctx, in.RequestID, func(pr *domain.ProcessedRequest) {
		pr.Stage = domain.StageJudge
	}); err != nil {
		return fmt.Errorf("op=handler.Judge: %w", err)
	}

	result, err := h.Judge.Judge(ctx, in.GatewayRequest.Prompt, in.InferenceResult.Response, in.GatewayRequest.JudgeModel)
	if err != nil {
		return h.fail(ctx, in, err)
	}

	rec, err := h.States.Update(ctx, in.RequestID, func(pr *domain.ProcessedRequest) {
		pr.Stage = domain.StageCompleted
		pr.JudgeResult = &result
	})
	if err != nil {
		return fmt.Errorf("op=handler.Judge: %w", err)
	}

	row := flattenCompleted(rec)
	if _, err := h.Archive.CreateHistory(ctx, row); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Redelivered terminal message: a prior attempt already archived
			// this request_id. Treat as success per DESIGN.md's Open Question
			// resolution — the unique constraint already makes this safe.
			lg.Info("archive write conflict treated as success (redelivery)", slog.String("request_id", in.RequestID))
			return nil
		}
		return fmt.Errorf("op=handler.Judge: archive write failed: %w", err)
	}

	lg.Info("judge handled", slog.String("request_id", in.RequestID))
	return nil
}

// fail marks state Failed and makes a best-effort archive write of the
// failure record; archive errors on this path are logged and swallowed
// per spec.md §4.3 step 5.
func (h *JudgeHandler) fail(ctx domain.Context, in domain.JudgeMessage, cause error) error {
	lg := observability.LoggerFromContext(ctx)
	reason := cause.Error()

	rec, updErr := h.States.Update(ctx, in.RequestID, func(pr *domain.ProcessedRequest) {
		pr.Stage = domain.StageFailed
		pr.ErrorMessage = &reason
	})
	if updErr != nil {
		lg.Error("failed to mark state Failed", slog.String("request_id", in.RequestID), slog.Any("error", updErr))
		return fmt.Errorf("op=handler.Judge: %w", cause)
	}

	row := flattenFailed(rec)
	if _, archErr := h.Archive.CreateHistory(ctx, row); archErr != nil && !errors.Is(archErr, domain.ErrConflict) {
		lg.Warn("best-effort failure archive write failed", slog.String("request_id", in.RequestID), slog.Any("error", archErr))
	}

	return fmt.Errorf("op=handler.Judge: %w", cause)
}

func flattenCompleted(rec domain.ProcessedRequest) domain.ArchiveRow {
	row := baseRow(rec)
	row.Status = domain.ArchiveStatusCompleted
	now := time.Now()
	row.CompletedAt = now
	if rec.JudgeResult != nil {
		score := rec.JudgeResult.Score
		reasoning := rec.JudgeResult.Reasoning
		latency := rec.JudgeResult.LatencyMs
		row.JudgeScore = &score
		row.JudgeReasoning = &reasoning
		row.JudgeLatencyMs = &latency
		row.JudgeCategories = rec.JudgeResult.Categories
	}
	return row
}

func flattenFailed(rec domain.ProcessedRequest) domain.ArchiveRow {
	row := baseRow(rec)
	row.Status = domain.ArchiveStatusFailed
	row.ErrorMessage = rec.ErrorMessage
	row.CompletedAt = time.Now()
	return row
}

func baseRow(rec domain.ProcessedRequest) domain.ArchiveRow {
	row := domain.ArchiveRow{
		RequestID:   rec.RequestID,
		Prompt:      rec.GatewayRequest.Prompt,
		TargetModel: rec.GatewayRequest.TargetModel.Name,
		JudgeModel:  rec.GatewayRequest.JudgeModel.Name,
		CreatedAt:   rec.CreatedAt,
	}
	if rec.InferenceResult != nil {
		resp := rec.InferenceResult.Response
		latency := rec.InferenceResult.LatencyMs
		row.InferenceResponse = &resp
		row.InferenceLatencyMs = &latency
		if rec.InferenceResult.TotalTokens != nil {
			row.InferenceTokens = rec.InferenceResult.TotalTokens
		}
	}
	return row
}
