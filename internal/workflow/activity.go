// Package workflow implements the turn workflow (spec.md §4.4): the
// journalled activity sequence a session entity runs to turn one user
// message into a persisted assistant reply, plus the pure projection of a
// completed result into a streamed event sequence.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dohr-michael/agentrt/internal/storage"
)

// runActivity checks the journal for a prior (executionID, activityName,
// idempotencyKey) entry before running fn, giving each step exactly-once
// semantics across restarts. Mirrors the dedup the entity pool already
// applies to persisted RPCs, generalized to typed per-step results.
func runActivity[T any](ctx context.Context, journal storage.WorkflowJournalPort, executionID, activityName, idempotencyKey string, fn func() (T, error)) (T, error) {
	var zero T

	prior, err := journal.LookupActivity(ctx, executionID, activityName, idempotencyKey)
	if err == nil && prior != nil {
		if prior.Status == storage.JournalFailed {
			return zero, fmt.Errorf("%s", prior.SerializedError)
		}
		if prior.SerializedResult == "" {
			return zero, nil
		}
		var result T
		if err := json.Unmarshal([]byte(prior.SerializedResult), &result); err != nil {
			return zero, fmt.Errorf("decode journaled %s result: %w", activityName, err)
		}
		return result, nil
	}

	value, runErr := fn()
	entry := storage.JournalEntry{ExecutionID: executionID, ActivityName: activityName, IdempotencyKey: idempotencyKey}
	if runErr != nil {
		entry.Status = storage.JournalFailed
		entry.SerializedError = runErr.Error()
	} else {
		entry.Status = storage.JournalComplete
		raw, marshalErr := json.Marshal(value)
		if marshalErr != nil {
			return zero, fmt.Errorf("marshal %s result: %w", activityName, marshalErr)
		}
		entry.SerializedResult = string(raw)
	}
	if recordErr := journal.RecordActivity(ctx, entry); recordErr != nil {
		return zero, fmt.Errorf("record %s activity: %w", activityName, recordErr)
	}
	return value, runErr
}
