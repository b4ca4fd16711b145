package judgeclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evalmesh/pipeline/internal/domain"
)

func TestStub_Judge_ScoresByLength(t *testing.T) {
	s := NewStub()
	jm := domain.JudgeModel{Name: "gpt-4o"}

	short, err := s.Judge(context.Background(), "p", "short", jm)
	require.NoError(t, err)
	require.Equal(t, 7.5, short.Score)

	empty, err := s.Judge(context.Background(), "p", "", jm)
	require.NoError(t, err)
	require.Equal(t, 0.0, empty.Score)

	long, err := s.Judge(context.Background(), "p", makeLong(), jm)
	require.NoError(t, err)
	require.Equal(t, 9.0, long.Score)
}

func makeLong() string {
	b := make([]byte, 250)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
