package handler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalmesh/pipeline/internal/domain"
)

func seedInference(t *testing.T, states *fakeStates, requestID string) (domain.GatewayRequest, domain.InferenceResult) {
	t.Helper()
	req := domain.GatewayRequest{
		Prompt:      "explain recursion",
		TargetModel: domain.TargetModel{Name: "GPT-4o"},
		JudgeModel:  domain.JudgeModel{Name: "gpt-4o"},
	}
	infer := domain.InferenceResult{Response: "the answer", Model: "gpt-4o"}
	_, err := states.Create(context.Background(), requestID, domain.ProcessedRequest{
		RequestID:       requestID,
		GatewayRequest:  req,
		Stage:           domain.StageInference,
		InferenceResult: &infer,
	})
	require.NoError(t, err)
	return req, infer
}

func TestJudgeHandler_HappyPath(t *testing.T) {
	states := newFakeStates()
	req, infer := seedInference(t, states, "req-1")
	judge := &fakeJudge{result: domain.JudgeResult{Score: 8.5, Reasoning: "solid", Model: "gpt-4o"}}
	archive := newFakeArchive()

	h := &JudgeHandler{States: states, Judge: judge, Archive: archive}

	body, err := json.Marshal(domain.JudgeMessage{RequestID: "req-1", GatewayRequest: req, InferenceResult: infer})
	require.NoError(t, err)

	err = h.Handle(context.Background(), domain.Message{Body: body})
	require.NoError(t, err)

	rec, err := states.Get(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageCompleted, rec.Stage)
	require.NotNil(t, rec.JudgeResult)
	assert.Equal(t, 8.5, rec.JudgeResult.Score)

	row, err := archive.GetByRequestID(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ArchiveStatusCompleted, row.Status)
	require.NotNil(t, row.JudgeScore)
	assert.Equal(t, 8.5, *row.JudgeScore)
}

func TestJudgeHandler_JudgeFailureArchivesFailureBestEffort(t *testing.T) {
	states := newFakeStates()
	req, infer := seedInference(t, states, "req-2")
	judge := &fakeJudge{err: assertErr("judge service timeout")}
	archive := newFakeArchive()

	h := &JudgeHandler{States: states, Judge: judge, Archive: archive}

	body, err := json.Marshal(domain.JudgeMessage{RequestID: "req-2", GatewayRequest: req, InferenceResult: infer})
	require.NoError(t, err)

	err = h.Handle(context.Background(), domain.Message{Body: body})
	require.Error(t, err)

	rec, getErr := states.Get(context.Background(), "req-2")
	require.NoError(t, getErr)
	assert.Equal(t, domain.StageFailed, rec.Stage)
	require.NotNil(t, rec.ErrorMessage)
	assert.Contains(t, *rec.ErrorMessage, "judge service timeout")

	row, archErr := archive.GetByRequestID(context.Background(), "req-2")
	require.NoError(t, archErr)
	assert.Equal(t, domain.ArchiveStatusFailed, row.Status)
}

func TestJudgeHandler_RedeliveredArchiveConflictTreatedAsSuccess(t *testing.T) {
	states := newFakeStates()
	req, infer := seedInference(t, states, "req-3")
	judge := &fakeJudge{result: domain.JudgeResult{Score: 5, Model: "gpt-4o"}}
	archive := newFakeArchive()
	_, err := archive.CreateHistory(context.Background(), domain.ArchiveRow{RequestID: "req-3", Status: domain.ArchiveStatusCompleted})
	require.NoError(t, err)

	h := &JudgeHandler{States: states, Judge: judge, Archive: archive}

	body, err := json.Marshal(domain.JudgeMessage{RequestID: "req-3", GatewayRequest: req, InferenceResult: infer})
	require.NoError(t, err)

	err = h.Handle(context.Background(), domain.Message{Body: body})
	require.NoError(t, err)
}
