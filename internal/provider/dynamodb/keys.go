package dynamodb

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// PK/SK prefix constants. Run truth items live under RUNID# partitions;
// newest-first list copies live under WF# partitions keyed by creation time.
const (
	prefixRunID    = "RUNID#"
	prefixWorkflow = "WF#"
	prefixRun      = "RUN#"
	prefixEvent    = "EVENT#"
	prefixLock     = "LOCK#"

	skRun  = "RUN"
	skLock = "LOCK"

	// allWorkflows is the partition holding cross-workflow list copies.
	allWorkflows = "ALL"
)

func runIDPK(runID string) string { return prefixRunID + runID }
func lockPK(key string) string    { return prefixLock + key }

func workflowPK(workflow string) string {
	if workflow == "" {
		workflow = allWorkflows
	}
	return prefixWorkflow + workflow
}

func runTruthSK() string { return skRun }
func lockSK() string     { return skLock }

func runListSK(createdAt time.Time, runID string) string {
	return prefixRun + createdAt.UTC().Format(time.RFC3339Nano) + "#" + runID
}

func eventSK(ts time.Time) string {
	millis := ts.UnixMilli()
	nonce := make([]byte, 4)
	_, _ = rand.Read(nonce)
	return fmt.Sprintf("%s%013d#%s", prefixEvent, millis, hex.EncodeToString(nonce))
}

func ttlEpoch(d time.Duration) int64 {
	return time.Now().Add(d).Unix()
}

func isExpired(epoch int64) bool {
	return epoch > 0 && time.Now().Unix() > epoch
}

// attributeStr extracts a string attribute from a DynamoDB item.
func attributeStr(item map[string]ddbtypes.AttributeValue, key string) (string, error) {
	av, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	var s string
	if err := attributevalue.Unmarshal(av, &s); err != nil {
		return "", fmt.Errorf("unmarshaling %q: %w", key, err)
	}
	return s, nil
}

// attributeTTL extracts the "ttl" integer attribute from a DynamoDB item.
func attributeTTL(item map[string]ddbtypes.AttributeValue) (int64, error) {
	av, ok := item["ttl"]
	if !ok {
		return 0, nil
	}
	var n int64
	if err := attributevalue.Unmarshal(av, &n); err != nil {
		return 0, fmt.Errorf("unmarshaling %q: %w", "ttl", err)
	}
	return n, nil
}
