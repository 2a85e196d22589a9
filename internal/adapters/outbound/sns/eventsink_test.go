package sns

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

// mockSNSClient implements SNSPublisher for testing.
type mockSNSClient struct {
	mu          sync.Mutex
	publishFunc func(ctx context.Context, params *sns.PublishInput) (*sns.PublishOutput, error)
	calls       []*sns.PublishInput
}

func (m *mockSNSClient) Publish(ctx context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.mu.Lock()
	m.calls = append(m.calls, params)
	fn := m.publishFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, params)
	}
	return &sns.PublishOutput{MessageId: aws.String("test-message-id")}, nil
}

const (
	bindingsTopic      = "arn:aws:sns:us-east-1:123456789:socialproof-bindings"
	verificationsTopic = "arn:aws:sns:us-east-1:123456789:socialproof-verifications"
)

func testConfig() Config {
	return Config{
		Topics:         TopicARNs{Bindings: bindingsTopic, Verifications: verificationsTopic},
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	}
}

func bindingEvent() outbound.BindingEvent {
	return outbound.BindingEvent{
		ID:          "evt-1",
		NetworkID:   entity.NetworkRinkeby,
		UserAddress: "0x00000000000000000000000000000000000000aa",
		Social: entity.BoundSocial{
			Platform: entity.PlatformTwitter,
			Status:   entity.BindingChecked,
			ProofURL: "https://twitter.com/statuses/1",
			Username: "alice",
		},
		CompletedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestNewEventSink_Validation(t *testing.T) {
	_, err := NewEventSink(nil, testConfig())
	assert.EqualError(t, err, "sns client is required")

	_, err = NewEventSink(&mockSNSClient{}, Config{Topics: TopicARNs{Verifications: verificationsTopic}})
	assert.EqualError(t, err, "bindings topic ARN is required")

	_, err = NewEventSink(&mockSNSClient{}, Config{Topics: TopicARNs{Bindings: bindingsTopic}})
	assert.EqualError(t, err, "verifications topic ARN is required")
}

func TestNewEventSink_AppliesDefaults(t *testing.T) {
	sink, err := NewEventSink(&mockSNSClient{}, Config{Topics: testConfig().Topics})
	require.NoError(t, err)
	assert.Equal(t, 3, sink.config.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, sink.config.InitialBackoff)
	assert.Equal(t, 5*time.Second, sink.config.MaxBackoff)
	assert.Equal(t, 2.0, sink.config.BackoffFactor)
}

func TestPublish_RoutesAndAttributes(t *testing.T) {
	client := &mockSNSClient{}
	sink, err := NewEventSink(client, testConfig())
	require.NoError(t, err)

	require.NoError(t, sink.Publish(context.Background(), bindingEvent()))
	require.NoError(t, sink.Publish(context.Background(), outbound.VerificationEvent{
		ID:        "evt-2",
		NetworkID: entity.NetworkMainnet,
		Platform:  entity.PlatformFacebook,
		Status:    entity.VerifyStatus{Status: entity.VerifyInvalid},
	}))

	require.Len(t, client.calls, 2)

	first := client.calls[0]
	assert.Equal(t, bindingsTopic, aws.ToString(first.TopicArn))
	assert.Equal(t, "binding_completed", aws.ToString(first.MessageAttributes["eventType"].StringValue))
	assert.Equal(t, "twitter", aws.ToString(first.MessageAttributes["platform"].StringValue))
	assert.Equal(t, "4", aws.ToString(first.MessageAttributes["networkId"].StringValue))
	assert.Equal(t, "Number", aws.ToString(first.MessageAttributes["networkId"].DataType))

	var decoded outbound.BindingEvent
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(first.Message)), &decoded))
	assert.Equal(t, bindingEvent(), decoded)

	second := client.calls[1]
	assert.Equal(t, verificationsTopic, aws.ToString(second.TopicArn))
	assert.Equal(t, "facebook", aws.ToString(second.MessageAttributes["platform"].StringValue))
}

func TestPublish_RetriesTransientFailures(t *testing.T) {
	attempts := 0
	client := &mockSNSClient{publishFunc: func(context.Context, *sns.PublishInput) (*sns.PublishOutput, error) {
		attempts++
		if attempts < 3 {
			return nil, &types.ThrottledException{Message: aws.String("slow down")}
		}
		return &sns.PublishOutput{}, nil
	}}
	sink, err := NewEventSink(client, testConfig())
	require.NoError(t, err)

	require.NoError(t, sink.Publish(context.Background(), bindingEvent()))
	assert.Equal(t, 3, attempts)
}

func TestPublish_PermanentFailureIsNotRetried(t *testing.T) {
	client := &mockSNSClient{publishFunc: func(context.Context, *sns.PublishInput) (*sns.PublishOutput, error) {
		return nil, &types.AuthorizationErrorException{Message: aws.String("denied")}
	}}
	sink, err := NewEventSink(client, testConfig())
	require.NoError(t, err)

	err = sink.Publish(context.Background(), bindingEvent())
	var authErr *types.AuthorizationErrorException
	assert.ErrorAs(t, err, &authErr)
	assert.Len(t, client.calls, 1)
}

func TestPublish_GivesUpAfterRetries(t *testing.T) {
	client := &mockSNSClient{publishFunc: func(context.Context, *sns.PublishInput) (*sns.PublishOutput, error) {
		return nil, errors.New("connection reset")
	}}
	sink, err := NewEventSink(client, testConfig())
	require.NoError(t, err)

	assert.Error(t, sink.Publish(context.Background(), bindingEvent()))
	assert.Len(t, client.calls, 3)
}

func TestPublish_AfterClose(t *testing.T) {
	client := &mockSNSClient{}
	sink, err := NewEventSink(client, testConfig())
	require.NoError(t, err)

	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())
	assert.Error(t, sink.Publish(context.Background(), bindingEvent()))
	assert.Empty(t, client.calls)
}
