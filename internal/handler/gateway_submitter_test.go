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

func TestGatewaySubmitter_Submit(t *testing.T) {
	states := newFakeStates()
	pub := &fakePublisher{}
	g := &GatewaySubmitter{States: states, Publisher: pub, Topics: broker.TopicNames{Inference: "inference", Judge: "judge"}}

	req := domain.GatewayRequest{Prompt: "hello", TargetModel: domain.TargetModel{Name: "GPT-4o"}, JudgeModel: domain.JudgeModel{Name: "gpt-4o"}}

	requestID, err := g.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, requestID)

	rec, err := states.Get(context.Background(), requestID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageGateway, rec.Stage)
	assert.Equal(t, req, rec.GatewayRequest)

	require.Len(t, pub.published, 1)
	assert.Equal(t, "inference", pub.published[0].topic)

	var infMsg domain.InferenceMessage
	require.NoError(t, json.Unmarshal(pub.published[0].payload, &infMsg))
	assert.Equal(t, requestID, infMsg.RequestID)
}

func TestGatewaySubmitter_PublishFailurePropagates(t *testing.T) {
	states := newFakeStates()
	pub := &fakePublisher{err: assertErr("broker unreachable")}
	g := &GatewaySubmitter{States: states, Publisher: pub, Topics: broker.TopicNames{Inference: "inference", Judge: "judge"}}

	req := domain.GatewayRequest{Prompt: "hello", TargetModel: domain.TargetModel{Name: "GPT-4o"}, JudgeModel: domain.JudgeModel{Name: "gpt-4o"}}

	_, err := g.Submit(context.Background(), req)
	require.Error(t, err)
}
