package sqsqueue

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/evalmesh/pipeline/internal/observability"
)

// extenderEntry tracks one in-flight message's visibility-extension
// schedule. dueAt is when the next ChangeMessageVisibility call is owed;
// startedAt bounds total extension lifetime against max_processing_time.
type extenderEntry struct {
	messageID     string
	receiptHandle string
	startedAt     time.Time
	dueAt         time.Time
}

// visibilityExtender is the single background goroutine that keeps
// in-flight SQS messages from becoming visible again to other consumers
// while their handler is still running. It owns an ordered registry
// (container/list, guarded by a mutex) of in-flight messages, scanning
// from the front on each tick and extending (then re-queuing to the
// back) any entry whose extension is due, exactly as spec.md §4.2.a
// describes. A message that has been in flight longer than
// maxProcessingTime is dropped from the registry without extension,
// letting SQS's own visibility timeout expire it for redelivery.
type visibilityExtender struct {
	mu       sync.Mutex
	order    *list.List
	index    map[string]*list.Element
	client   *sqs.Client
	queueURL string

	extensionInterval time.Duration
	visibilityTimeout time.Duration
	maxProcessingTime time.Duration

	stopCh chan struct{}
	done   chan struct{}
}

func newVisibilityExtender(client *sqs.Client, queueURL string, extensionInterval, visibilityTimeout, maxProcessingTime time.Duration) *visibilityExtender {
	return &visibilityExtender{
		order:             list.New(),
		index:             make(map[string]*list.Element),
		client:            client,
		queueURL:          queueURL,
		extensionInterval: extensionInterval,
		visibilityTimeout: visibilityTimeout,
		maxProcessingTime: maxProcessingTime,
		stopCh:            make(chan struct{}),
		done:              make(chan struct{}),
	}
}

// register adds a message to the extension registry, to be called before
// the message is submitted to the dispatcher.
func (v *visibilityExtender) register(messageID, receiptHandle string) {
	now := time.Now()
	entry := &extenderEntry{
		messageID:     messageID,
		receiptHandle: receiptHandle,
		startedAt:     now,
		dueAt:         now.Add(v.extensionInterval),
	}
	v.mu.Lock()
	el := v.order.PushBack(entry)
	v.index[messageID] = el
	v.mu.Unlock()
}

// unregister removes a message from the registry; called unconditionally
// (success or failure) once the handler returns.
func (v *visibilityExtender) unregister(messageID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if el, ok := v.index[messageID]; ok {
		v.order.Remove(el)
		delete(v.index, messageID)
	}
}

// run scans the registry on each tick, extending any entry whose
// extension is due, until ctx is canceled or stop is called.
func (v *visibilityExtender) run(ctx context.Context) {
	defer close(v.done)
	ticker := time.NewTicker(v.extensionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-v.stopCh:
			return
		case <-ticker.C:
			v.extendDue(ctx)
		}
	}
}

func (v *visibilityExtender) extendDue(ctx context.Context) {
	now := time.Now()
	var due []*extenderEntry

	// New entries are pushed to the back with dueAt = now+interval, and
	// extended entries are moved to the back with a fresh dueAt of the same
	// form, so the front-to-back order is ordered by dueAt (time of last
	// extension). The moment we reach an entry that is neither expired nor
	// due, no entry behind it is due either, so it is safe to stop scanning
	// (spec.md §4.2.a). An entry behind that point that has already passed
	// maxProcessingTime is dropped, unextended, on the first pass that
	// reaches it.
	v.mu.Lock()
	for el := v.order.Front(); el != nil; {
		entry := el.Value.(*extenderEntry)
		if now.Sub(entry.startedAt) > v.maxProcessingTime {
			next := el.Next()
			v.order.Remove(el)
			delete(v.index, entry.messageID)
			slog.Warn("message exceeded max processing time, abandoning extension",
				slog.String("message_id", entry.messageID))
			el = next
			continue
		}
		if !now.Before(entry.dueAt) {
			due = append(due, entry)
			entry.dueAt = now.Add(v.extensionInterval)
			next := el.Next()
			v.order.MoveToBack(el)
			el = next
			continue
		}
		break
	}
	v.mu.Unlock()

	for _, entry := range due {
		timeout := int32(v.visibilityTimeout.Seconds())
		input := &sqs.ChangeMessageVisibilityInput{
			QueueUrl:          &v.queueURL,
			ReceiptHandle:     &entry.receiptHandle,
			VisibilityTimeout: timeout,
		}
		_, err := v.client.ChangeMessageVisibility(ctx, input)
		if err != nil {
			slog.Warn("failed to extend visibility timeout", slog.String("message_id", entry.messageID), slog.Any("error", err))
			continue
		}
		observability.VisibilityExtensionsTotal.WithLabelValues(v.queueURL).Inc()
	}
}

func (v *visibilityExtender) stop() {
	close(v.stopCh)
	<-v.done
}
