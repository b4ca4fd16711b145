// Package sqsqueue implements the cloud pub/sub + queue pairing broker
// backend over AWS SNS (publish) and SQS (consume), following the
// spec's receipt_handle/visibility_timeout vocabulary. Grounded in shape
// (not in library) on the teacher's internal/adapter/queue/redpanda
// package, since no example repo in the pack exercises AWS; see
// DESIGN.md for the out-of-pack dependency justification.
package sqsqueue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/evalmesh/pipeline/internal/broker"
	"github.com/evalmesh/pipeline/internal/observability"
)

// Producer publishes to SNS topics and implements domain.Publisher.
type Producer struct {
	client *sns.Client
	topics broker.TopicNames // ARNs, despite the field name borrowed from the topic-name type
}

// NewProducer wraps an already-configured SNS client.
func NewProducer(client *sns.Client, topicARNs broker.TopicNames) *Producer {
	return &Producer{client: client, topics: topicARNs}
}

// Publish fans payload out to the SNS topic ARN matching
// topicLogicalName. SNS delivers to the paired SQS queue; queue
// subscription itself is operational setup, out of scope here (the spec
// treats "topics subscribed downstream" as a given).
func (p *Producer) Publish(ctx context.Context, topicLogicalName string, payload []byte) error {
	arn, err := p.resolveTopicARN(topicLogicalName)
	if err != nil {
		return err
	}

	body := string(payload)
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: &arn,
		Message:  &body,
	})
	if err != nil {
		return fmt.Errorf("op=sqsqueue.Publish: sns publish to %s: %w", arn, err)
	}
	observability.MessagesPublishedTotal.WithLabelValues(topicLogicalName, "sqsqueue").Inc()
	return nil
}

func (p *Producer) resolveTopicARN(logicalName string) (string, error) {
	switch logicalName {
	case "inference":
		return p.topics.Inference, nil
	case "judge":
		return p.topics.Judge, nil
	default:
		return "", fmt.Errorf("op=sqsqueue.resolveTopicARN: unknown logical topic %q", logicalName)
	}
}

// Close is a no-op: the SNS client owns no resources that need explicit
// release beyond its underlying HTTP transport.
func (p *Producer) Close() error { return nil }
