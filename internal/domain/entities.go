// Package domain defines core entities, ports, and domain-specific errors
// for the evaluation pipeline.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels).
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInternal        = errors.New("internal error")
)

// Context is a type alias to stdlib context.Context for convenience across
// layers, kept for parity with the teacher codebase this module is
// descended from.
type Context = context.Context

// Stage captures the coarse phase of a request's lifecycle. Transitions
// are monotonic: Gateway -> Inference -> Judge -> Completed, with Failed
// reachable from any non-terminal stage.
type Stage string

// Stage values.
const (
	StageGateway   Stage = "Gateway"
	StageInference Stage = "Inference"
	StageJudge     Stage = "Judge"
	StageCompleted Stage = "Completed"
	StageFailed    Stage = "Failed"
)

var stageOrder = map[Stage]int{
	StageGateway:   0,
	StageInference: 1,
	StageJudge:     2,
	StageCompleted: 3,
}

// IsTerminal reports whether a stage is terminal (Completed or Failed).
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// CanTransition reports whether moving from "from" to "to" is a legal,
// non-decreasing stage transition. Failed is reachable from any
// non-terminal stage; otherwise the transition must strictly advance.
func CanTransition(from, to Stage) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	fromRank, fromOK := stageOrder[from]
	toRank, toOK := stageOrder[to]
	if !fromOK || !toOK {
		return false
	}
	return toRank > fromRank
}

// TargetModel identifies the model under evaluation.
type TargetModel struct {
	Name string `json:"name"`
}

// JudgeModel identifies the model used to score a response.
type JudgeModel struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// GatewayRequest is the immutable submission payload. APIKey is held
// opaquely: it traverses the broker because downstream workers need it to
// call the provider, but it must never be logged.
type GatewayRequest struct {
	Prompt      string      `json:"prompt"`
	TargetModel TargetModel `json:"target_model"`
	JudgeModel  JudgeModel  `json:"judge_model"`
	APIKey      string      `json:"api_key"`
}

// InferenceResult is the target model's response and call metadata.
type InferenceResult struct {
	Response         string  `json:"response"`
	Model            string  `json:"model"`
	LatencyMs        float64 `json:"latency_ms"`
	PromptTokens     *int    `json:"prompt_tokens,omitempty"`
	CompletionTokens *int    `json:"completion_tokens,omitempty"`
	TotalTokens      *int    `json:"total_tokens,omitempty"`
}

// JudgeResult is the judge model's scoring output.
type JudgeResult struct {
	Score      float64            `json:"score"`
	Reasoning  string             `json:"reasoning"`
	Categories map[string]float64 `json:"categories"`
	Model      string             `json:"model"`
	LatencyMs  float64            `json:"latency_ms"`
}

// ProcessedRequest is the ephemeral state record tracked per request_id.
type ProcessedRequest struct {
	RequestID       string           `json:"request_id"`
	GatewayRequest  GatewayRequest   `json:"gateway_request"`
	Stage           Stage            `json:"stage"`
	InferenceResult *InferenceResult `json:"inference_result,omitempty"`
	JudgeResult     *JudgeResult     `json:"judge_result,omitempty"`
	ErrorMessage    *string          `json:"error_message,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// InferenceMessage is the broker payload published by the Gateway and
// consumed by the Inference Worker.
type InferenceMessage struct {
	RequestID      string         `json:"request_id"`
	TopicName      string         `json:"topic_name"`
	GatewayRequest GatewayRequest `json:"gateway_request"`
}

// JudgeMessage is the broker payload published by the Inference Worker and
// consumed by the Judge Worker.
type JudgeMessage struct {
	RequestID       string          `json:"request_id"`
	TopicName       string          `json:"topic_name"`
	GatewayRequest  GatewayRequest  `json:"gateway_request"`
	InferenceResult InferenceResult `json:"inference_result"`
}

// Archive status values, matching spec.md §6.3.
const (
	ArchiveStatusCompleted = "Completed"
	ArchiveStatusFailed    = "Failed"
)

// ArchiveRow is the flattened durable record written at terminal stage.
type ArchiveRow struct {
	RequestID          string
	Prompt             string
	TargetModel        string
	JudgeModel         string
	InferenceResponse  *string
	InferenceLatencyMs *float64
	InferenceTokens    *int
	JudgeScore         *float64
	JudgeReasoning     *string
	JudgeCategories    map[string]float64
	JudgeLatencyMs     *float64
	Status             string
	ErrorMessage       *string
	CreatedAt          time.Time
	CompletedAt        time.Time
}
