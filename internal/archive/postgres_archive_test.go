package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalmesh/pipeline/internal/domain"
)

// rowStub implements pgx.Row, grounded on the teacher's testhelpers_test.go.
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

// poolStub implements PgxPool for tests.
type poolStub struct {
	execErr  error
	execTag  pgconn.CommandTag
	row      rowStub
	rows     pgx.Rows
	queryErr error
}

func (p *poolStub) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return p.execTag, p.execErr
}

func (p *poolStub) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	if p.row.scan == nil {
		return rowStub{scan: func(_ ...any) error { return errors.New("no row configured") }}
	}
	return p.row
}

func (p *poolStub) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return p.rows, p.queryErr
}

func strPtr(s string) *string    { return &s }
func f64Ptr(f float64) *float64  { return &f }
func intPtr(i int) *int          { return &i }

func sampleRow() domain.ArchiveRow {
	now := time.Now().UTC()
	return domain.ArchiveRow{
		RequestID:          "req-1",
		Prompt:             "explain recursion",
		TargetModel:        "gpt-4o-mini",
		JudgeModel:         "gpt-4o",
		InferenceResponse:  strPtr("recursion is..."),
		InferenceLatencyMs: f64Ptr(120),
		InferenceTokens:    intPtr(42),
		JudgeScore:         f64Ptr(8.5),
		JudgeReasoning:     strPtr("accurate and concise"),
		JudgeCategories:    map[string]float64{"accuracy": 9, "clarity": 8},
		JudgeLatencyMs:     f64Ptr(80),
		Status:             domain.ArchiveStatusCompleted,
		CreatedAt:          now,
		CompletedAt:        now,
	}
}

func TestRepo_CreateHistory_OK(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := NewRepo(pool)

	row, err := repo.CreateHistory(context.Background(), sampleRow())
	require.NoError(t, err)
	assert.Equal(t, "req-1", row.RequestID)
}

func TestRepo_CreateHistory_DuplicateIsConflict(t *testing.T) {
	pgErr := &pgconn.PgError{Code: uniqueViolation}
	pool := &poolStub{execErr: pgErr}
	repo := NewRepo(pool)

	_, err := repo.CreateHistory(context.Background(), sampleRow())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRepo_CreateHistory_OtherDBError(t *testing.T) {
	pool := &poolStub{execErr: errors.New("connection reset")}
	repo := NewRepo(pool)

	_, err := repo.CreateHistory(context.Background(), sampleRow())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInternal)
}

func TestRepo_GetByRequestID_NotFound(t *testing.T) {
	pool := &poolStub{row: rowStub{scan: func(_ ...any) error { return pgx.ErrNoRows }}}
	repo := NewRepo(pool)

	_, err := repo.GetByRequestID(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepo_GetByRequestID_OK(t *testing.T) {
	want := sampleRow()
	pool := &poolStub{row: rowStub{scan: func(dest ...any) error {
		*dest[0].(*string) = want.RequestID
		*dest[1].(*string) = want.Prompt
		*dest[2].(*string) = want.TargetModel
		*dest[3].(*string) = want.JudgeModel
		*dest[4].(**string) = want.InferenceResponse
		*dest[5].(**float64) = want.InferenceLatencyMs
		*dest[6].(**int) = want.InferenceTokens
		*dest[7].(**float64) = want.JudgeScore
		*dest[8].(**string) = want.JudgeReasoning
		*dest[9].(*[]byte) = []byte(`{"accuracy":9,"clarity":8}`)
		*dest[10].(**float64) = want.JudgeLatencyMs
		*dest[11].(*string) = want.Status
		*dest[12].(**string) = want.ErrorMessage
		*dest[13].(*time.Time) = want.CreatedAt
		*dest[14].(*time.Time) = want.CompletedAt
		return nil
	}}}
	repo := NewRepo(pool)

	got, err := repo.GetByRequestID(context.Background(), want.RequestID)
	require.NoError(t, err)
	assert.Equal(t, want.RequestID, got.RequestID)
	assert.Equal(t, float64(9), got.JudgeCategories["accuracy"])
}

func TestCleanupService_DefaultsRetention(t *testing.T) {
	svc := NewCleanupService(&poolStub{}, 0)
	assert.Equal(t, 90, svc.RetentionDays)
}

func TestCleanupService_CleanupOldData(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("DELETE 3")}
	svc := NewCleanupService(pool, 30)

	err := svc.CleanupOldData(context.Background())
	require.NoError(t, err)
}
