package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dwsmith1983/checkrun/pkg/types"
)

func TestEventIDDeterministic(t *testing.T) {
	ts := time.Now()
	ev := types.Event{
		Kind:      types.EventStepCompleted,
		Workflow:  "quality",
		RunID:     "run-1",
		Job:       "clippy",
		Status:    "PASSED",
		Message:   "lint",
		Timestamp: ts,
	}

	assert.Equal(t, eventID(ev), eventID(ev))
}

func TestEventIDDistinguishesSameTimestampEvents(t *testing.T) {
	ts := time.Now()
	first := types.Event{Kind: types.EventStepCompleted, Workflow: "quality", Message: "first", Timestamp: ts}
	second := types.Event{Kind: types.EventStepCompleted, Workflow: "quality", Message: "second", Timestamp: ts}

	assert.NotEqual(t, eventID(first), eventID(second))
}
