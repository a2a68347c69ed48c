package workflow

import (
	"context"
	"errors"

	"github.com/dohr-michael/agentrt/internal/entity"
	"github.com/dohr-michael/agentrt/internal/storage"
)

// RunStream adapts Runner.ProcessTurn to an entity.StreamFunc: it runs the
// turn to completion, then emits the projected event sequence (or a single
// turn.failed frame on error) over the returned channel.
func (r *Runner) RunStream(in ProcessTurnInput) entity.StreamFunc {
	return func(ctx context.Context) (<-chan entity.Event, error) {
		out := make(chan entity.Event, 16)
		go func() {
			defer close(out)
			result, err := r.ProcessTurn(ctx, in)
			if err != nil {
				select {
				case out <- ProjectFailure(ErrorCode(err), err.Error()):
				case <-ctx.Done():
				}
				return
			}
			for _, ev := range ProjectStream(result) {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	}
}

// ErrorCode classifies a ProcessTurn error into a short code for the
// turn.failed event and for TurnModelFailure{reason} callers.
func ErrorCode(err error) string {
	var policyDenied *TurnPolicyDenied
	if errors.As(err, &policyDenied) {
		return policyDenied.Reason
	}
	var modelFailure *TurnModelFailure
	if errors.As(err, &modelFailure) {
		return "turn_model_failure"
	}
	var budgetExceeded *storage.TokenBudgetExceeded
	if errors.As(err, &budgetExceeded) {
		return "token_budget_exceeded"
	}
	var sessionNotFound *storage.SessionNotFound
	if errors.As(err, &sessionNotFound) {
		return "session_not_found"
	}
	var contextExceeded *storage.ContextWindowExceeded
	if errors.As(err, &contextExceeded) {
		return "context_window_exceeded"
	}
	return "internal_error"
}
