// Package shared provides the backend-agnostic pieces both broker
// implementations compose: a bounded concurrent dispatcher and the
// tolerant envelope parser, mirroring the worker-pool/channel idiom the
// teacher's redpanda consumer uses for its job queue.
package shared

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/evalmesh/pipeline/internal/domain"
	"github.com/evalmesh/pipeline/internal/observability"
	"go.opentelemetry.io/otel"
)

// Dispatcher bounds concurrent handler execution with a semaphore channel,
// the same idiom the teacher uses for its worker pool (`workerPool chan
// struct{}`), but expressed as an acquire/release pair instead of a fixed
// set of goroutines, since both backends hand it records one at a time
// from a single poll loop.
type Dispatcher struct {
	sem   chan struct{}
	wg    sync.WaitGroup
	stage string
}

// NewDispatcher returns a Dispatcher allowing at most maxConcurrency
// handlers to run at once.
func NewDispatcher(maxConcurrency int, stage string) *Dispatcher {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Dispatcher{sem: make(chan struct{}, maxConcurrency), stage: stage}
}

// Submit blocks until a concurrency slot is free (or ctx is done), then
// runs fn in a new goroutine, recovering any panic as an error so a
// single bad handler can never kill the poll loop. Once a slot is
// acquired, onDone is called exactly once, with the handler's error (nil
// on success). If ctx is done before a slot frees up, Submit returns
// ctx.Err() and neither fn nor onDone runs.
func (d *Dispatcher) Submit(ctx context.Context, fn func(context.Context) error, onDone func(error)) error {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.wg.Add(1)
	observability.StartProcessing(d.stage)
	go func() {
		defer func() {
			<-d.sem
			d.wg.Done()
		}()
		err := d.runRecovered(ctx, fn)
		if err != nil {
			observability.FailProcessing(d.stage)
		} else {
			observability.CompleteProcessing(d.stage)
		}
		onDone(err)
	}()
	return nil
}

func (d *Dispatcher) runRecovered(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("op=dispatcher.handle: handler panicked: %v", r)
			slog.Error("recovered handler panic", slog.Any("panic", r))
		}
	}()
	return fn(ctx)
}

// Wait blocks until all dispatched handlers return, or ctx is done,
// whichever comes first.
func (d *Dispatcher) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// PrepareContext attaches a request-scoped logger, request_id, and an
// OpenTelemetry span to ctx before handing it to a handler, mirroring the
// teacher's `processRecord` (ContextWithRequestID + ContextWithLogger +
// tracer.Start).
func PrepareContext(ctx context.Context, spanName, requestID string, fields ...any) (context.Context, func()) {
	if requestID != "" {
		ctx = observability.ContextWithRequestID(ctx, requestID)
		fields = append(fields, slog.String("request_id", requestID))
	}
	ctx = observability.WithLoggerFields(ctx, fields...)
	tracer := otel.Tracer("broker.consumer")
	ctx, span := tracer.Start(ctx, spanName)
	return ctx, span.End
}

// envelope is the broker-neutral shape a raw message body may take: either
// the JSON payload directly, or wrapped the way SNS-to-SQS fan-out wraps
// it (`{"Message": "<json-string>", "MessageAttributes": {...}}`). Both
// shapes are tolerated so handlers never need to know which backend
// delivered the message.
type envelope struct {
	Message           *string                    `json:"Message"`
	MessageAttributes map[string]snsMessageAttrib `json:"MessageAttributes"`
}

type snsMessageAttrib struct {
	Value string `json:"Value"`
}

// ParseEnvelope extracts the effective JSON body and attribute map from a
// raw broker payload, unwrapping an SNS-style wrapper if present.
// Malformed individual messages are the caller's concern to skip; this
// function only distinguishes "wrapped" from "direct".
func ParseEnvelope(raw []byte) (body []byte, attrs map[string]string, err error) {
	var env envelope
	if jsonErr := json.Unmarshal(raw, &env); jsonErr == nil && env.Message != nil {
		attrs = make(map[string]string, len(env.MessageAttributes))
		for k, v := range env.MessageAttributes {
			attrs[k] = v.Value
		}
		return []byte(*env.Message), attrs, nil
	}
	// Not a wrapper (or Message missing): treat raw as the direct body.
	var probe json.RawMessage
	if jsonErr := json.Unmarshal(raw, &probe); jsonErr != nil {
		return nil, nil, fmt.Errorf("op=shared.ParseEnvelope: %w: %v", domain.ErrInvalidArgument, jsonErr)
	}
	return raw, nil, nil
}
