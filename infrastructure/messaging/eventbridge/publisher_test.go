package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"clickchain/domain/events"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*eventbridge.PutEventsOutput)
	return out, args.Error(1)
}

func eventsN(n int) []events.DomainEvent {
	out := make([]events.DomainEvent, n)
	for i := range out {
		out[i] = events.NewGraphRebuilt("demo", i+1, time.Unix(1700000000, 0))
	}
	return out
}

func TestPublisher_Publish(t *testing.T) {
	client := &mockClient{}
	client.On("PutEvents", mock.Anything, mock.MatchedBy(func(in *eventbridge.PutEventsInput) bool {
		if len(in.Entries) != 1 {
			return false
		}
		e := in.Entries[0]
		var detail map[string]interface{}
		if err := json.Unmarshal([]byte(aws.ToString(e.Detail)), &detail); err != nil {
			return false
		}
		return aws.ToString(e.EventBusName) == "bus" &&
			aws.ToString(e.Source) == Source &&
			aws.ToString(e.DetailType) == events.TypeSessionCreated &&
			detail["session_id"] == "demo"
	})).Return(&eventbridge.PutEventsOutput{}, nil).Once()

	p := NewPublisher(client, "bus", zap.NewNop())
	require.NoError(t, p.Publish(context.Background(), events.NewSessionCreated("demo", time.Now())))
	client.AssertExpectations(t)
}

func TestPublisher_PublishBatchChunks(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		wantCalls int
	}{
		{"empty", 0, 0},
		{"single chunk", 10, 1},
		{"two chunks", 11, 2},
		{"three chunks", 25, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockClient{}
			client.On("PutEvents", mock.Anything, mock.MatchedBy(func(in *eventbridge.PutEventsInput) bool {
				return len(in.Entries) > 0 && len(in.Entries) <= batchSize
			})).Return(&eventbridge.PutEventsOutput{}, nil)

			p := NewPublisher(client, "bus", nil)
			require.NoError(t, p.PublishBatch(context.Background(), eventsN(tt.count)))
			client.AssertNumberOfCalls(t, "PutEvents", tt.wantCalls)
		})
	}
}

func TestPublisher_Failures(t *testing.T) {
	t.Run("client error", func(t *testing.T) {
		client := &mockClient{}
		client.On("PutEvents", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

		err := NewPublisher(client, "bus", nil).PublishBatch(context.Background(), eventsN(12))
		assert.ErrorContains(t, err, "throttled")
		client.AssertNumberOfCalls(t, "PutEvents", 1)
	})

	t.Run("failed entries", func(t *testing.T) {
		client := &mockClient{}
		client.On("PutEvents", mock.Anything, mock.Anything).Return(&eventbridge.PutEventsOutput{
			FailedEntryCount: 1,
			Entries: []types.PutEventsResultEntry{
				{EventId: aws.String("1")},
				{ErrorCode: aws.String("InternalFailure"), ErrorMessage: aws.String("try again")},
			},
		}, nil)

		err := NewPublisher(client, "bus", nil).PublishBatch(context.Background(), eventsN(2))
		assert.ErrorContains(t, err, "1 events failed")
	})
}
