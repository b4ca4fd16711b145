// Package broker holds the small types shared by the two broker backends,
// internal/broker/sqsqueue and internal/broker/redpanda. The
// publish/consume contract itself (Publisher, Consumer, Message, Handler)
// lives in internal/domain, and choosing a backend from configuration is
// done by internal/wiring.
package broker

import (
	"fmt"

	"github.com/evalmesh/pipeline/internal/config"
	"github.com/evalmesh/pipeline/internal/domain"
)

// TopicNames maps the two logical topics the pipeline uses ("inference",
// "judge") to a backend-specific identifier: a Kafka topic name for
// internal/broker/redpanda, or an SNS topic ARN for the
// internal/broker/sqsqueue producer (the SQS queue URLs are passed to the
// consumer separately).
type TopicNames struct {
	Inference string
	Judge     string
}

// ErrUnknownBroker describes a config.MessagingBroker value that names no
// known backend. internal/wiring, which does the backend selection,
// returns its own wiring.ErrUnknownBroker rather than this type.
type ErrUnknownBroker struct{ Broker config.Broker }

func (e ErrUnknownBroker) Error() string {
	return fmt.Sprintf("op=broker.Select: %v: unknown broker %q", domain.ErrInvalidArgument, e.Broker)
}
