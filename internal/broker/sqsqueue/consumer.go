package sqsqueue

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/evalmesh/pipeline/internal/broker/shared"
	"github.com/evalmesh/pipeline/internal/domain"
)

// Consumer implements the Poller / Visibility-extender / Dispatcher+
// finalizer triad from spec.md §4.2.a over a single SQS queue.
type Consumer struct {
	client   *sqs.Client
	queueURL string
	handler  domain.Handler

	waitTime               time.Duration
	maxMessages            int32
	extender               *visibilityExtender
	dispatcher             *shared.Dispatcher
	visibilityTimeout      time.Duration
	betweenReceiveAttempts time.Duration

	stopCh chan struct{}
}

// Config bundles the per-queue tunables the Poller/Extender need.
type Config struct {
	QueueURL          string
	WaitTime          time.Duration
	MaxMessages       int32
	VisibilityTimeout time.Duration
	MaxProcessingTime time.Duration
	MaxConcurrency    int
	ExtensionFraction float64 // fraction of VisibilityTimeout between extensions; e.g. 0.5

	// SecondsBetweenReceives is the poller's between-empty-poll sleep
	// (spec.md §4.2.a); a floor of 1ms is enforced regardless of the
	// configured value.
	SecondsBetweenReceives time.Duration
}

// NewConsumer builds a Consumer for one SQS queue.
func NewConsumer(client *sqs.Client, cfg Config, stage string, handler domain.Handler) *Consumer {
	extensionInterval := time.Duration(float64(cfg.VisibilityTimeout) * cfg.ExtensionFraction)
	if extensionInterval <= 0 {
		extensionInterval = cfg.VisibilityTimeout / 2
	}
	return &Consumer{
		client:                 client,
		queueURL:               cfg.QueueURL,
		handler:                handler,
		waitTime:               cfg.WaitTime,
		maxMessages:            cfg.MaxMessages,
		visibilityTimeout:      cfg.VisibilityTimeout,
		betweenReceiveAttempts: cfg.SecondsBetweenReceives,
		extender:               newVisibilityExtender(client, cfg.QueueURL, extensionInterval, cfg.VisibilityTimeout, cfg.MaxProcessingTime),
		dispatcher:             shared.NewDispatcher(cfg.MaxConcurrency, stage),
		stopCh:                 make(chan struct{}),
	}
}

// Start runs the long-poll loop until ctx is canceled or Close is called.
func (c *Consumer) Start(ctx context.Context) error {
	slog.Info("sqs consumer starting", slog.String("queue", c.queueURL))
	go c.extender.run(ctx)

	waitSeconds := int32(c.waitTime.Seconds())
	for {
		select {
		case <-ctx.Done():
			c.dispatcher.Wait(context.Background())
			c.extender.stop()
			return ctx.Err()
		case <-c.stopCh:
			c.dispatcher.Wait(context.Background())
			c.extender.stop()
			return nil
		default:
		}

		attemptStart := time.Now()
		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            &c.queueURL,
			MaxNumberOfMessages: c.maxMessages,
			WaitTimeSeconds:     waitSeconds,
			MessageAttributeNames: []string{"All"},
		})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			slog.Error("sqs receive failed", slog.Any("error", err))
			time.Sleep(time.Second)
			continue
		}

		for _, m := range out.Messages {
			c.handleMessage(ctx, m)
		}

		if len(out.Messages) == 0 {
			c.sleepBetweenReceives(ctx, attemptStart)
		}
	}
}

// sleepBetweenReceives implements spec.md §4.2.a's empty-poll backoff: the
// interval is measured from the start of the just-completed attempt, not
// from wake, so a long poll that already consumed most of the interval
// only sleeps the remainder. Always sleeps at least 1ms so the loop still
// yields. Cooperatively cancellable via ctx/stopCh.
func (c *Consumer) sleepBetweenReceives(ctx context.Context, attemptStart time.Time) {
	sleepFor := c.betweenReceiveAttempts - time.Since(attemptStart)
	if sleepFor < time.Millisecond {
		sleepFor = time.Millisecond
	}
	timer := time.NewTimer(sleepFor)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-c.stopCh:
	}
}

func (c *Consumer) handleMessage(ctx context.Context, m types.Message) {
	messageID := ""
	if m.MessageId != nil {
		messageID = *m.MessageId
	}
	receiptHandle := ""
	if m.ReceiptHandle != nil {
		receiptHandle = *m.ReceiptHandle
	}
	body := ""
	if m.Body != nil {
		body = *m.Body
	}

	parsedBody, attrs, err := shared.ParseEnvelope([]byte(body))
	if err != nil {
		// Permanent/malformed messages are left for redelivery rather than
		// deleted outright (spec.md §7): the queue's own redrive policy
		// routes a message toward its dead-letter queue once it has been
		// received more times than that policy allows.
		slog.Warn("malformed sqs message left for redelivery", slog.String("message_id", messageID), slog.Any("error", err))
		return
	}
	msg := domain.Message{ID: messageID, Body: parsedBody, Attributes: attrs}

	c.extender.register(messageID, receiptHandle)
	hctx, end := shared.PrepareContext(ctx, "ProcessMessage", "", slog.String("message_id", messageID))
	err = c.dispatcher.Submit(hctx, func(dctx context.Context) error {
		defer end()
		return c.handler(dctx, msg)
	}, func(handlerErr error) {
		defer c.extender.unregister(messageID)
		if handlerErr != nil {
			slog.Error("handler failed, message left for redelivery", slog.String("message_id", messageID), slog.Any("error", handlerErr))
			return
		}
		c.delete(context.Background(), receiptHandle)
	})
	if err != nil {
		c.extender.unregister(messageID)
		slog.Error("failed to submit message to dispatcher", slog.String("message_id", messageID), slog.Any("error", err))
	}
}

func (c *Consumer) delete(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.queueURL,
		ReceiptHandle: &receiptHandle,
	})
	if err != nil {
		slog.Error("failed to delete sqs message", slog.Any("error", err))
	}
}

// Close signals the poll loop to stop and waits for in-flight handlers.
func (c *Consumer) Close(ctx context.Context) error {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	c.dispatcher.Wait(ctx)
	return nil
}
