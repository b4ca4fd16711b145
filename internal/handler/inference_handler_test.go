package handler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalmesh/pipeline/internal/broker"
	"github.com/evalmesh/pipeline/internal/domain"
)

func seedGateway(t *testing.T, states *fakeStates, requestID string) domain.GatewayRequest {
	t.Helper()
	req := domain.GatewayRequest{
		Prompt:      "explain recursion",
		TargetModel: domain.TargetModel{Name: "GPT-4o"},
		JudgeModel:  domain.JudgeModel{Name: "gpt-4o"},
	}
	_, err := states.Create(context.Background(), requestID, domain.ProcessedRequest{
		RequestID:      requestID,
		GatewayRequest: req,
		Stage:          domain.StageGateway,
	})
	require.NoError(t, err)
	return req
}

func TestInferenceHandler_HappyPath(t *testing.T) {
	states := newFakeStates()
	req := seedGateway(t, states, "req-1")
	model := &fakeModel{result: domain.InferenceResult{Response: "the answer", Model: "gpt-4o"}}
	pub := &fakePublisher{}

	h := &InferenceHandler{
		States:    states,
		Model:     model,
		Publisher: pub,
		Topics:    broker.TopicNames{Inference: "inference", Judge: "judge"},
	}

	body, err := json.Marshal(domain.InferenceMessage{RequestID: "req-1", GatewayRequest: req})
	require.NoError(t, err)

	err = h.Handle(context.Background(), domain.Message{Body: body})
	require.NoError(t, err)

	rec, err := states.Get(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageInference, rec.Stage)
	require.NotNil(t, rec.InferenceResult)
	assert.Equal(t, "the answer", rec.InferenceResult.Response)

	require.Len(t, pub.published, 1)
	assert.Equal(t, "judge", pub.published[0].topic)

	var judgeMsg domain.JudgeMessage
	require.NoError(t, json.Unmarshal(pub.published[0].payload, &judgeMsg))
	assert.Equal(t, "req-1", judgeMsg.RequestID)
	assert.Equal(t, "the answer", judgeMsg.InferenceResult.Response)
}

func TestInferenceHandler_ModelFailureMarksFailed(t *testing.T) {
	states := newFakeStates()
	req := seedGateway(t, states, "req-2")
	model := &fakeModel{err: assertErr("provider unavailable")}
	pub := &fakePublisher{}

	h := &InferenceHandler{
		States:    states,
		Model:     model,
		Publisher: pub,
		Topics:    broker.TopicNames{Inference: "inference", Judge: "judge"},
	}

	body, err := json.Marshal(domain.InferenceMessage{RequestID: "req-2", GatewayRequest: req})
	require.NoError(t, err)

	err = h.Handle(context.Background(), domain.Message{Body: body})
	require.Error(t, err)

	rec, getErr := states.Get(context.Background(), "req-2")
	require.NoError(t, getErr)
	assert.Equal(t, domain.StageFailed, rec.Stage)
	require.NotNil(t, rec.ErrorMessage)
	assert.Contains(t, *rec.ErrorMessage, "provider unavailable")

	assert.Empty(t, pub.published)
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func assertErr(msg string) error { return simpleErr(msg) }
