package dynamodb

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Locks are single-item leases under LOCK# partitions, used by the ingest
// poller to claim change-event delivery IDs. A lease is free when its item is
// absent or its ttl epoch has passed.

// AcquireLock claims the lease for key until ttl elapses. The write is
// conditional on the lease being free, so concurrent claimants cannot both
// win; a held lease returns false without error. The item records which host
// claimed the delivery and when, for debugging stuck deduplication locks.
func (p *DynamoDBProvider) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	host, _ := os.Hostname()
	now := time.Now()

	_, err := p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &p.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":       &ddbtypes.AttributeValueMemberS{Value: lockPK(key)},
			"SK":       &ddbtypes.AttributeValueMemberS{Value: lockSK()},
			"ttl":      &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(ttlEpoch(ttl), 10)},
			"holder":   &ddbtypes.AttributeValueMemberS{Value: host},
			"leasedAt": &ddbtypes.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) OR #ttl < :now"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":now": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReleaseLock frees the lease for key so the next claimant wins. Releasing a
// lease that is not held is not an error.
func (p *DynamoDBProvider) ReleaseLock(ctx context.Context, key string) error {
	_, err := p.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &p.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: lockPK(key)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: lockSK()},
		},
	})
	return err
}
