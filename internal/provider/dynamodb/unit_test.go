package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/checkrun/internal/provider"
	"github.com/dwsmith1983/checkrun/pkg/types"
)

// mockDDB is a minimal mock of the DDBAPI interface for unit testing.
type mockDDB struct {
	putItemFn            func(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	getItemFn            func(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	queryFn              func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	deleteItemFn         func(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	transactWriteItemsFn func(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	describeTableFn      func(ctx context.Context, input *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	createTableFn        func(ctx context.Context, input *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	updateTTLFn          func(ctx context.Context, input *dynamodb.UpdateTimeToLiveInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

func (m *mockDDB) PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.putItemFn != nil {
		return m.putItemFn(ctx, input, opts...)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDB) GetItem(ctx context.Context, input *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getItemFn != nil {
		return m.getItemFn(ctx, input, opts...)
	}
	return &dynamodb.GetItemOutput{}, nil
}

func (m *mockDDB) Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, input, opts...)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockDDB) DeleteItem(ctx context.Context, input *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if m.deleteItemFn != nil {
		return m.deleteItemFn(ctx, input, opts...)
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockDDB) TransactWriteItems(ctx context.Context, input *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if m.transactWriteItemsFn != nil {
		return m.transactWriteItemsFn(ctx, input, opts...)
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (m *mockDDB) DescribeTable(ctx context.Context, input *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if m.describeTableFn != nil {
		return m.describeTableFn(ctx, input, opts...)
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func (m *mockDDB) CreateTable(ctx context.Context, input *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if m.createTableFn != nil {
		return m.createTableFn(ctx, input, opts...)
	}
	return &dynamodb.CreateTableOutput{}, nil
}

func (m *mockDDB) UpdateTimeToLive(ctx context.Context, input *dynamodb.UpdateTimeToLiveInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	if m.updateTTLFn != nil {
		return m.updateTTLFn(ctx, input, opts...)
	}
	return &dynamodb.UpdateTimeToLiveOutput{}, nil
}

func stringAttr(item map[string]ddbtypes.AttributeValue, key string) string {
	av, ok := item[key].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return av.Value
}

func TestPutRunWritesTruthAndListCopies(t *testing.T) {
	var captured *dynamodb.TransactWriteItemsInput
	mock := &mockDDB{
		transactWriteItemsFn: func(_ context.Context, input *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
			captured = input
			return &dynamodb.TransactWriteItemsOutput{}, nil
		},
	}
	p := NewFromClient(mock, "checkrun")

	run := types.Run{
		RunID:     "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		Workflow:  "quality",
		Status:    types.RunRunning,
		CreatedAt: time.Now(),
	}
	require.NoError(t, p.PutRun(context.Background(), run))

	require.NotNil(t, captured)
	require.Len(t, captured.TransactItems, 3)

	truth := captured.TransactItems[0].Put
	assert.Equal(t, "RUNID#01ARZ3NDEKTSV4RRFFQ69G5FAV", stringAttr(truth.Item, "PK"))
	assert.Equal(t, "RUN", stringAttr(truth.Item, "SK"))

	wfCopy := captured.TransactItems[1].Put
	assert.Equal(t, "WF#quality", stringAttr(wfCopy.Item, "PK"))
	assert.Contains(t, stringAttr(wfCopy.Item, "SK"), "RUN#")

	allCopy := captured.TransactItems[2].Put
	assert.Equal(t, "WF#ALL", stringAttr(allCopy.Item, "PK"))
}

func TestGetRunNotFound(t *testing.T) {
	mock := &mockDDB{
		getItemFn: func(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: nil}, nil
		},
	}
	p := NewFromClient(mock, "checkrun")

	_, err := p.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestGetRunExpiredTreatedAsMissing(t *testing.T) {
	run := types.Run{RunID: "run-1", Workflow: "quality", Status: types.RunPassed}
	data, err := json.Marshal(run)
	require.NoError(t, err)

	mock := &mockDDB{
		getItemFn: func(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			return &dynamodb.GetItemOutput{Item: map[string]ddbtypes.AttributeValue{
				"PK":   &ddbtypes.AttributeValueMemberS{Value: "RUNID#run-1"},
				"SK":   &ddbtypes.AttributeValueMemberS{Value: "RUN"},
				"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
				"ttl":  &ddbtypes.AttributeValueMemberN{Value: "1000"}, // long past
			}}, nil
		},
	}
	p := NewFromClient(mock, "checkrun")

	_, err = p.GetRun(context.Background(), "run-1")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestGetRunRoundTrip(t *testing.T) {
	run := types.Run{RunID: "run-1", Workflow: "quality", Status: types.RunFailed}
	data, err := json.Marshal(run)
	require.NoError(t, err)

	mock := &mockDDB{
		getItemFn: func(_ context.Context, input *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
			assert.Equal(t, "RUNID#run-1", stringAttr(input.Key, "PK"))
			return &dynamodb.GetItemOutput{Item: map[string]ddbtypes.AttributeValue{
				"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
			}}, nil
		},
	}
	p := NewFromClient(mock, "checkrun")

	got, err := p.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, got.Status)
	assert.Equal(t, "quality", got.Workflow)
}

func TestListRunsSkipsExpiredItems(t *testing.T) {
	fresh := types.Run{RunID: "fresh", Workflow: "quality"}
	freshData, err := json.Marshal(fresh)
	require.NoError(t, err)
	stale := types.Run{RunID: "stale", Workflow: "quality"}
	staleData, err := json.Marshal(stale)
	require.NoError(t, err)

	mock := &mockDDB{
		queryFn: func(_ context.Context, input *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			return &dynamodb.QueryOutput{Items: []map[string]ddbtypes.AttributeValue{
				{"data": &ddbtypes.AttributeValueMemberS{Value: string(freshData)}},
				{
					"data": &ddbtypes.AttributeValueMemberS{Value: string(staleData)},
					"ttl":  &ddbtypes.AttributeValueMemberN{Value: "1000"},
				},
			}}, nil
		},
	}
	p := NewFromClient(mock, "checkrun")

	runs, err := p.ListRuns(context.Background(), "quality", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "fresh", runs[0].RunID)
}

func TestAcquireLockWritesLeaseMetadata(t *testing.T) {
	var captured *dynamodb.PutItemInput
	mock := &mockDDB{
		putItemFn: func(_ context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			captured = input
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	p := NewFromClient(mock, "checkrun")

	ok, err := p.AcquireLock(context.Background(), "ingest:delivery-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NotNil(t, captured)
	assert.Equal(t, "LOCK#ingest:delivery-1", stringAttr(captured.Item, "PK"))
	assert.Equal(t, "LOCK", stringAttr(captured.Item, "SK"))
	assert.Contains(t, captured.Item, "ttl")
	assert.Contains(t, captured.Item, "holder")
	leasedAt := stringAttr(captured.Item, "leasedAt")
	_, err = time.Parse(time.RFC3339, leasedAt)
	assert.NoError(t, err)
}

func TestAcquireLockHeldReturnsFalse(t *testing.T) {
	mock := &mockDDB{
		putItemFn: func(_ context.Context, _ *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			return nil, &ddbtypes.ConditionalCheckFailedException{}
		},
	}
	p := NewFromClient(mock, "checkrun")

	ok, err := p.AcquireLock(context.Background(), "delivery-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcquireLockPropagatesErrors(t *testing.T) {
	boom := errors.New("throttled")
	mock := &mockDDB{
		putItemFn: func(_ context.Context, _ *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			return nil, boom
		},
	}
	p := NewFromClient(mock, "checkrun")

	_, err := p.AcquireLock(context.Background(), "delivery-1", time.Minute)
	assert.ErrorIs(t, err, boom)
}

func TestAppendEventWritesBothPartitions(t *testing.T) {
	var captured *dynamodb.TransactWriteItemsInput
	mock := &mockDDB{
		transactWriteItemsFn: func(_ context.Context, input *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
			captured = input
			return &dynamodb.TransactWriteItemsOutput{}, nil
		},
	}
	p := NewFromClient(mock, "checkrun")

	ev := types.Event{Kind: types.EventRunCreated, Workflow: "quality", RunID: "run-1", Timestamp: time.Now()}
	require.NoError(t, p.AppendEvent(context.Background(), ev))

	require.NotNil(t, captured)
	require.Len(t, captured.TransactItems, 2)
	assert.Equal(t, "WF#ALL", stringAttr(captured.TransactItems[0].Put.Item, "PK"))
	assert.Equal(t, "WF#quality", stringAttr(captured.TransactItems[1].Put.Item, "PK"))
}
