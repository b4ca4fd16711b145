package handler

import (
	"sync"

	"github.com/evalmesh/pipeline/internal/domain"
)

// fakeStates is an in-memory domain.StateRepository for handler tests.
type fakeStates struct {
	mu   sync.Mutex
	recs map[string]domain.ProcessedRequest
	// failUpdate, when non-empty, makes Update fail for any requestID in
	// this set, simulating a backend outage mid-handler.
	failUpdate map[string]bool
}

func newFakeStates() *fakeStates {
	return &fakeStates{recs: map[string]domain.ProcessedRequest{}, failUpdate: map[string]bool{}}
}

func (f *fakeStates) Create(_ domain.Context, requestID string, data domain.ProcessedRequest) (domain.ProcessedRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[requestID] = data
	return data, nil
}

func (f *fakeStates) Get(_ domain.Context, requestID string) (domain.ProcessedRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[requestID]
	if !ok {
		return domain.ProcessedRequest{}, domain.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStates) Update(_ domain.Context, requestID string, mutate func(*domain.ProcessedRequest)) (domain.ProcessedRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate[requestID] {
		return domain.ProcessedRequest{}, domain.ErrInternal
	}
	rec := f.recs[requestID]
	mutate(&rec)
	f.recs[requestID] = rec
	return rec, nil
}

func (f *fakeStates) Delete(_ domain.Context, requestID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.recs[requestID]
	delete(f.recs, requestID)
	return ok, nil
}

func (f *fakeStates) IsHealthy(_ domain.Context) bool { return true }

// fakeModel is a domain.ModelClient test double.
type fakeModel struct {
	result domain.InferenceResult
	err    error
}

func (f *fakeModel) Invoke(_ domain.Context, _ domain.GatewayRequest) (domain.InferenceResult, error) {
	return f.result, f.err
}

// fakeJudge is a domain.JudgeClient test double.
type fakeJudge struct {
	result domain.JudgeResult
	err    error
}

func (f *fakeJudge) Judge(_ domain.Context, _, _ string, _ domain.JudgeModel) (domain.JudgeResult, error) {
	return f.result, f.err
}

// fakePublisher is a domain.Publisher test double recording every publish.
type fakePublisher struct {
	mu        sync.Mutex
	published []fakePublished
	err       error
}

type fakePublished struct {
	topic   string
	payload []byte
}

func (f *fakePublisher) Publish(_ domain.Context, topic string, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, fakePublished{topic: topic, payload: payload})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

// fakeArchive is a domain.ArchiveRepository test double.
type fakeArchive struct {
	mu       sync.Mutex
	rows     map[string]domain.ArchiveRow
	writeErr error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{rows: map[string]domain.ArchiveRow{}}
}

func (f *fakeArchive) CreateHistory(_ domain.Context, row domain.ArchiveRow) (domain.ArchiveRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return domain.ArchiveRow{}, f.writeErr
	}
	if _, exists := f.rows[row.RequestID]; exists {
		return domain.ArchiveRow{}, domain.ErrConflict
	}
	f.rows[row.RequestID] = row
	return row, nil
}

func (f *fakeArchive) List(_ domain.Context, _, _ int, _ string) ([]domain.ArchiveRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ArchiveRow, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeArchive) GetByRequestID(_ domain.Context, requestID string) (domain.ArchiveRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[requestID]
	if !ok {
		return domain.ArchiveRow{}, domain.ErrNotFound
	}
	return row, nil
}
