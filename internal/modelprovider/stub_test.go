package modelprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evalmesh/pipeline/internal/domain"
)

func TestStub_Invoke(t *testing.T) {
	s := NewStub()
	res, err := s.Invoke(context.Background(), domain.GatewayRequest{
		Prompt:      "explain recursion",
		TargetModel: domain.TargetModel{Name: "GPT-4o"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Response)
	require.Equal(t, "gpt-4o", res.Model)
	require.NotNil(t, res.TotalTokens)
}
