// Package wiring assembles backend-specific adapters (broker, state
// store, archive, model/judge clients) from config.Config, keeping that
// backend-selection logic out of internal/broker itself (which sqsqueue
// and redpanda both import for broker.TopicNames, so it cannot also
// depend on them without a cycle) and out of cmd/* (which would
// otherwise duplicate it across four binaries).
package wiring

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/evalmesh/pipeline/internal/broker"
	"github.com/evalmesh/pipeline/internal/broker/redpanda"
	"github.com/evalmesh/pipeline/internal/broker/sqsqueue"
	"github.com/evalmesh/pipeline/internal/config"
	"github.com/evalmesh/pipeline/internal/domain"
)

// ErrUnknownBroker is returned when config.MessagingBroker names a backend
// this build does not recognize.
type ErrUnknownBroker struct{ Broker config.Broker }

func (e ErrUnknownBroker) Error() string {
	return fmt.Sprintf("op=wiring.Select: %v: unknown broker %q", domain.ErrInvalidArgument, e.Broker)
}

func loadAWSConfig(ctx context.Context, cfg config.Config) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if cfg.AWSEndpointURL != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.AWSEndpointURL))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// NewPublisher builds the Publisher for cfg.MessagingBroker: an SNS
// producer (sqsqueue) or a Kafka/Redpanda producer (redpanda).
func NewPublisher(ctx context.Context, cfg config.Config) (domain.Publisher, error) {
	switch cfg.MessagingBroker {
	case config.BrokerSQS:
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("op=wiring.NewPublisher: %w", err)
		}
		client := sns.NewFromConfig(awsCfg)
		return sqsqueue.NewProducer(client, broker.TopicNames{Inference: cfg.SNSTopicARNInference, Judge: cfg.SNSTopicARNJudge}), nil
	case config.BrokerRedpanda:
		p, err := redpanda.NewProducer(cfg.KafkaBrokers, broker.TopicNames{Inference: cfg.TopicInference, Judge: cfg.TopicJudge})
		if err != nil {
			return nil, fmt.Errorf("op=wiring.NewPublisher: %w", err)
		}
		return p, nil
	default:
		return nil, ErrUnknownBroker{Broker: cfg.MessagingBroker}
	}
}

// NewInferenceConsumer builds the Consumer that reads the inference topic
// for cfg.MessagingBroker.
func NewInferenceConsumer(ctx context.Context, cfg config.Config, handler domain.Handler) (domain.Consumer, error) {
	return newConsumer(ctx, cfg, cfg.SQSQueueURLInference, cfg.TopicInference, "inference", handler)
}

// NewJudgeConsumer builds the Consumer that reads the judge topic for
// cfg.MessagingBroker.
func NewJudgeConsumer(ctx context.Context, cfg config.Config, handler domain.Handler) (domain.Consumer, error) {
	return newConsumer(ctx, cfg, cfg.SQSQueueURLJudge, cfg.TopicJudge, "judge", handler)
}

func newConsumer(ctx context.Context, cfg config.Config, sqsQueueURL, kafkaTopic, stage string, handler domain.Handler) (domain.Consumer, error) {
	switch cfg.MessagingBroker {
	case config.BrokerSQS:
		awsCfg, err := loadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("op=wiring.NewConsumer: %w", err)
		}
		client := sqs.NewFromConfig(awsCfg)
		return sqsqueue.NewConsumer(client, sqsqueue.Config{
			QueueURL:               sqsQueueURL,
			WaitTime:               cfg.SQSReceiveWaitTime,
			MaxMessages:            cfg.SQSMaxMessages,
			VisibilityTimeout:      cfg.SQSVisibilityTimeout,
			MaxProcessingTime:      cfg.SQSMaxProcessingTime,
			MaxConcurrency:         cfg.ConsumerMaxConcurrency,
			ExtensionFraction:      0.5,
			SecondsBetweenReceives: cfg.SQSSecondsBetweenReceiveAttempts,
		}, stage, handler), nil
	case config.BrokerRedpanda:
		c, err := redpanda.NewConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, kafkaTopic, cfg.ConsumerMaxConcurrency, stage, handler)
		if err != nil {
			return nil, fmt.Errorf("op=wiring.NewConsumer: %w", err)
		}
		return c, nil
	default:
		return nil, ErrUnknownBroker{Broker: cfg.MessagingBroker}
	}
}
