// Package sns implements the EventSink interface using AWS SNS.
//
// Binding and verification events go to separate topics as JSON messages.
// Message attributes allow subscribers to filter:
//   - eventType: "binding_completed" or "verification_checked"
//   - platform: "twitter" or "facebook"
//   - networkId: the Ethereum network id as a string
//
// For testing, use the memory.EventSink adapter instead.
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/keymesh/socialproof/internal/pkg/retry"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

// Compile-time check that EventSink implements outbound.EventSink
var _ outbound.EventSink = (*EventSink)(nil)

// SNSPublisher defines the subset of SNS client methods used by EventSink.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// TopicARNs holds one topic per event type.
type TopicARNs struct {
	Bindings      string
	Verifications string
}

// Config holds configuration for the SNS event sink.
type Config struct {
	Topics TopicARNs

	// MaxRetries is the maximum number of retry attempts for transient failures.
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64

	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Logger:         slog.Default(),
	}
}

// EventSink publishes events to AWS SNS.
type EventSink struct {
	client SNSPublisher
	config Config
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewEventSink creates a new SNS event sink.
func NewEventSink(client SNSPublisher, config Config) (*EventSink, error) {
	if client == nil {
		return nil, errors.New("sns client is required")
	}
	if config.Topics.Bindings == "" {
		return nil, errors.New("bindings topic ARN is required")
	}
	if config.Topics.Verifications == "" {
		return nil, errors.New("verifications topic ARN is required")
	}

	defaults := ConfigDefaults()
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = defaults.BackoffFactor
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &EventSink{
		client: client,
		config: config,
		logger: config.Logger.With("component", "sns-eventsink"),
	}, nil
}

// Publish publishes an event to the topic of its type.
func (s *EventSink) Publish(ctx context.Context, event outbound.Event) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return errors.New("event sink is closed")
	}

	topicARN := s.topicARN(event.EventType())
	if topicARN == "" {
		return fmt.Errorf("no topic ARN configured for event type: %s", event.EventType())
	}

	message, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	input := &sns.PublishInput{
		TopicArn: aws.String(topicARN),
		Message:  aws.String(string(message)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"eventType": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.EventType())),
			},
			"platform": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.GetPlatform())),
			},
			"networkId": {
				DataType:    aws.String("Number"),
				StringValue: aws.String(strconv.Itoa(int(event.GetNetworkID()))),
			},
		},
	}

	cfg := retry.Config{
		MaxRetries:     s.config.MaxRetries,
		InitialBackoff: s.config.InitialBackoff,
		MaxBackoff:     s.config.MaxBackoff,
		BackoffFactor:  s.config.BackoffFactor,
	}
	onRetry := func(attempt int, err error, backoff time.Duration) {
		s.logger.Warn("publish failed, retrying",
			"attempt", attempt,
			"maxRetries", s.config.MaxRetries,
			"backoff", backoff,
			"error", err,
			"eventType", event.EventType(),
		)
	}
	err = retry.DoVoid(ctx, cfg, isRetryableError, onRetry, func() error {
		_, err := s.client.Publish(ctx, input)
		return err
	})
	if err != nil {
		s.logger.Error("publish failed", "error", err, "eventType", event.EventType())
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return nil
}

func (s *EventSink) topicARN(eventType outbound.EventType) string {
	switch eventType {
	case outbound.EventTypeBindingCompleted:
		return s.config.Topics.Bindings
	case outbound.EventTypeVerificationChecked:
		return s.config.Topics.Verifications
	default:
		return ""
	}
}

// isRetryableError reports whether a publish failure is worth another attempt.
// Validation and authorization failures are permanent.
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var invalidParam *types.InvalidParameterException
	var notFound *types.NotFoundException
	var authErr *types.AuthorizationErrorException
	if errors.As(err, &invalidParam) || errors.As(err, &notFound) || errors.As(err, &authErr) {
		return false
	}
	return true
}

// Close marks the sink as closed and prevents further publishing.
func (s *EventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.logger.Info("SNS event sink closed")
	}
	return nil
}
