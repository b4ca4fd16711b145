package domain

import "time"

// StateRepository is the ephemeral, short-TTL key/value coordination
// store. Lifetime of a record is approximately one request.
//
//go:generate mockery --name=StateRepository --with-expecter --filename=state_repository_mock.go
type StateRepository interface {
	// Create sets value with the configured default TTL. Collisions are
	// undefined: duplicate request_ids are assumed impossible (UUID v4).
	Create(ctx Context, requestID string, data ProcessedRequest) (ProcessedRequest, error)
	// Get returns the current record, or ErrNotFound if absent/expired.
	Get(ctx Context, requestID string) (ProcessedRequest, error)
	// Update reads the current record, applies mutate to it, refreshes
	// UpdatedAt, and writes back preserving the remaining TTL (falling
	// back to the default TTL if none was read).
	Update(ctx Context, requestID string, mutate func(*ProcessedRequest)) (ProcessedRequest, error)
	// Delete removes the record, reporting whether it existed.
	Delete(ctx Context, requestID string) (bool, error)
	// IsHealthy reports whether the backing store is reachable.
	IsHealthy(ctx Context) bool
}

// ArchiveRepository is the durable, never-deleted audit record store.
//
//go:generate mockery --name=ArchiveRepository --with-expecter --filename=archive_repository_mock.go
type ArchiveRepository interface {
	// CreateHistory writes a row. A duplicate request_id is a unique-
	// constraint conflict; implementations translate it to ErrConflict,
	// which callers may treat as a redelivery-safe success.
	CreateHistory(ctx Context, row ArchiveRow) (ArchiveRow, error)
	// List returns a page of rows, optionally filtered by status.
	List(ctx Context, limit, offset int, status string) ([]ArchiveRow, error)
	// GetByRequestID looks up a single row.
	GetByRequestID(ctx Context, requestID string) (ArchiveRow, error)
}

// Publisher is the broker-agnostic publish contract (spec.md §4.1).
// Publish is synchronous: it returns only once the broker has durably
// accepted the message, or with an error.
//
//go:generate mockery --name=Publisher --with-expecter --filename=publisher_mock.go
type Publisher interface {
	Publish(ctx Context, topicLogicalName string, payload []byte) error
	Close() error
}

// Message is the backend-neutral envelope handed to a Handler. Backend
// identifiers (receipt handle, offset) never cross this boundary.
type Message struct {
	ID         string
	Body       []byte
	Attributes map[string]string
}

// Handler processes one parsed Message and reports success/failure. A
// returned error (including a panic recovered by the dispatcher) means
// the message is NOT finalized and will be redelivered.
type Handler func(ctx Context, msg Message) error

// Consumer is the broker-agnostic async consume contract (spec.md §4.2).
type Consumer interface {
	// Start runs the poll/dispatch loop until ctx is done or Close is
	// called; it returns the reason the loop stopped.
	Start(ctx Context) error
	// Close signals shutdown, waits up to the configured grace period for
	// in-flight handlers, and releases broker resources.
	Close(ctx Context) error
}

// ModelClient abstracts a concrete target-model provider call. The full
// GatewayRequest is passed, not just prompt/apiKey, because the target
// model name drives provider dispatch (spec.md §4.3's lookup table).
//
//go:generate mockery --name=ModelClient --with-expecter --filename=model_client_mock.go
type ModelClient interface {
	Invoke(ctx Context, req GatewayRequest) (InferenceResult, error)
}

// JudgeClient abstracts the judge-model invocation.
//
//go:generate mockery --name=JudgeClient --with-expecter --filename=judge_client_mock.go
type JudgeClient interface {
	Judge(ctx Context, prompt, response string, judgeModel JudgeModel) (JudgeResult, error)
}

// DefaultStateTTL mirrors spec.md §6.5's TTL/retention knobs, kept here
// so adapters share one source of truth for "what does no-TTL mean".
const DefaultStateTTL = 7 * 24 * time.Hour
