package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/checkrun/internal/lifecycle"
	"github.com/dwsmith1983/checkrun/internal/provider"
	"github.com/dwsmith1983/checkrun/pkg/types"
)

// runKeyTTL returns the TTL for a run item based on status. Terminal runs get
// the configured retention; in-flight runs get an extra 24h buffer.
func (p *DynamoDBProvider) runKeyTTL(status types.RunStatus) time.Duration {
	if lifecycle.IsTerminalRun(status) {
		return p.retentionTTL
	}
	return p.retentionTTL + 24*time.Hour
}

// PutRun stores a run using dual-write: truth item plus newest-first list
// copies in the per-workflow and cross-workflow partitions.
func (p *DynamoDBProvider) PutRun(ctx context.Context, run types.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}

	ttl := fmt.Sprintf("%d", ttlEpoch(p.runKeyTTL(run.Status)))
	listSK := runListSK(run.CreatedAt, run.RunID)

	_, err = p.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []ddbtypes.TransactWriteItem{
			{
				Put: &ddbtypes.Put{
					TableName: &p.tableName,
					Item: map[string]ddbtypes.AttributeValue{
						"PK":   &ddbtypes.AttributeValueMemberS{Value: runIDPK(run.RunID)},
						"SK":   &ddbtypes.AttributeValueMemberS{Value: runTruthSK()},
						"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
						"ttl":  &ddbtypes.AttributeValueMemberN{Value: ttl},
					},
				},
			},
			{
				Put: &ddbtypes.Put{
					TableName: &p.tableName,
					Item: map[string]ddbtypes.AttributeValue{
						"PK":   &ddbtypes.AttributeValueMemberS{Value: workflowPK(run.Workflow)},
						"SK":   &ddbtypes.AttributeValueMemberS{Value: listSK},
						"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
						"ttl":  &ddbtypes.AttributeValueMemberN{Value: ttl},
					},
				},
			},
			{
				Put: &ddbtypes.Put{
					TableName: &p.tableName,
					Item: map[string]ddbtypes.AttributeValue{
						"PK":   &ddbtypes.AttributeValueMemberS{Value: workflowPK("")},
						"SK":   &ddbtypes.AttributeValueMemberS{Value: listSK},
						"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
						"ttl":  &ddbtypes.AttributeValueMemberN{Value: ttl},
					},
				},
			},
		},
	})
	return err
}

// GetRun retrieves a run from its truth item (strongly consistent).
func (p *DynamoDBProvider) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &p.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: runIDPK(runID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: runTruthSK()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching run %s: %w", runID, err)
	}
	if out.Item == nil {
		return nil, provider.ErrNotFound
	}

	ttlVal, _ := attributeTTL(out.Item)
	if isExpired(ttlVal) {
		return nil, provider.ErrNotFound
	}

	data, err := attributeStr(out.Item, "data")
	if err != nil {
		return nil, err
	}
	var run types.Run
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("unmarshaling run %s: %w", runID, err)
	}
	return &run, nil
}

// ListRuns returns recent runs newest-first; workflow "" means all workflows.
func (p *DynamoDBProvider) ListRuns(ctx context.Context, workflow string, limit int) ([]types.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	out, err := p.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &p.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: workflowPK(workflow)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixRun},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	runs := make([]types.Run, 0, len(out.Items))
	for _, item := range out.Items {
		ttlVal, _ := attributeTTL(item)
		if isExpired(ttlVal) {
			continue
		}
		data, err := attributeStr(item, "data")
		if err != nil {
			p.logger.Warn("skipping corrupt run record", "error", err)
			continue
		}
		var run types.Run
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			p.logger.Warn("skipping corrupt run record", "error", err)
			continue
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// AppendEvent writes an audit event to the workflow's event partition and the
// cross-workflow partition.
func (p *DynamoDBProvider) AppendEvent(ctx context.Context, event types.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	ttl := fmt.Sprintf("%d", ttlEpoch(p.retentionTTL))
	sk := eventSK(event.Timestamp)

	items := []ddbtypes.TransactWriteItem{
		{
			Put: &ddbtypes.Put{
				TableName: &p.tableName,
				Item: map[string]ddbtypes.AttributeValue{
					"PK":   &ddbtypes.AttributeValueMemberS{Value: workflowPK("")},
					"SK":   &ddbtypes.AttributeValueMemberS{Value: sk},
					"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
					"ttl":  &ddbtypes.AttributeValueMemberN{Value: ttl},
				},
			},
		},
	}
	if event.Workflow != "" {
		items = append(items, ddbtypes.TransactWriteItem{
			Put: &ddbtypes.Put{
				TableName: &p.tableName,
				Item: map[string]ddbtypes.AttributeValue{
					"PK":   &ddbtypes.AttributeValueMemberS{Value: workflowPK(event.Workflow)},
					"SK":   &ddbtypes.AttributeValueMemberS{Value: sk},
					"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
					"ttl":  &ddbtypes.AttributeValueMemberN{Value: ttl},
				},
			},
		})
	}

	_, err = p.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	return err
}

// ListEvents returns recent audit events newest-first; workflow "" means all.
func (p *DynamoDBProvider) ListEvents(ctx context.Context, workflow string, limit int) ([]types.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	out, err := p.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &p.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: workflowPK(workflow)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixEvent},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}

	events := make([]types.Event, 0, len(out.Items))
	for _, item := range out.Items {
		ttlVal, _ := attributeTTL(item)
		if isExpired(ttlVal) {
			continue
		}
		data, err := attributeStr(item, "data")
		if err != nil {
			p.logger.Warn("skipping corrupt event data", "error", err)
			continue
		}
		var ev types.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			p.logger.Warn("skipping corrupt event data", "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
