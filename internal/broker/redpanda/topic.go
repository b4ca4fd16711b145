// Package redpanda implements the log-based broker backend over
// Kafka/Redpanda using github.com/twmb/franz-go, grounded on the
// teacher's internal/adapter/queue/redpanda package.
package redpanda

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// ensureTopic creates the topic with the given partition/replication
// settings if it does not already exist, tolerating a concurrent creator.
func ensureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	req := kmsg.NewCreateTopicsRequest()
	reqTopic := kmsg.NewCreateTopicsRequestTopic()
	reqTopic.Topic = topic
	reqTopic.NumPartitions = partitions
	reqTopic.ReplicationFactor = replicationFactor
	req.Topics = append(req.Topics, reqTopic)

	resp, err := req.RequestWith(ctx, client)
	if err != nil {
		return fmt.Errorf("op=redpanda.ensureTopic: request: %w", err)
	}
	for _, t := range resp.Topics {
		if t.ErrorCode == 0 {
			continue
		}
		if errors.Is(kerr.ErrorForCode(t.ErrorCode), kerr.TopicAlreadyExists) {
			continue
		}
		return fmt.Errorf("op=redpanda.ensureTopic: topic %q: %w", topic, kerr.ErrorForCode(t.ErrorCode))
	}
	return nil
}
