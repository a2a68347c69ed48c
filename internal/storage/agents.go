package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AgentStatePort manages per-agent governance and token-budget state.
type AgentStatePort interface {
	Get(ctx context.Context, agentID string) (*AgentState, error)
	Upsert(ctx context.Context, state AgentState) error
	ConsumeTokenBudget(ctx context.Context, agentID string, requested int, now time.Time) error
}

func (db *DB) Get(ctx context.Context, agentID string) (*AgentState, error) {
	return getAgentTx(ctx, db.sql, agentID)
}

func getAgentTx(ctx context.Context, q querier, agentID string) (*AgentState, error) {
	row := q.QueryRowContext(ctx, `
		SELECT agent_id, permission_mode, token_budget, quota_period, tokens_consumed, budget_reset_at
		FROM agents WHERE agent_id = ?`, agentID)

	var s AgentState
	var resetAt sql.NullString
	if err := row.Scan(&s.AgentID, &s.PermissionMode, &s.TokenBudget, &s.QuotaPeriod, &s.TokensConsumed, &resetAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}
	if resetAt.Valid && resetAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, resetAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse budget_reset_at: %w", err)
		}
		s.BudgetResetAt = &t
	}
	return &s, nil
}

func (db *DB) Upsert(ctx context.Context, state AgentState) error {
	return db.Tx(ctx, func(tx *sql.Tx) error {
		var resetAt any
		if state.BudgetResetAt != nil {
			resetAt = state.BudgetResetAt.UTC().Format(time.RFC3339Nano)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agents (agent_id, permission_mode, token_budget, quota_period, tokens_consumed, budget_reset_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(agent_id) DO UPDATE SET
				permission_mode = excluded.permission_mode,
				token_budget = excluded.token_budget,
				quota_period = excluded.quota_period,
				tokens_consumed = excluded.tokens_consumed,
				budget_reset_at = excluded.budget_reset_at`,
			state.AgentID, state.PermissionMode, state.TokenBudget, state.QuotaPeriod, state.TokensConsumed, resetAt)
		if err != nil {
			return fmt.Errorf("upsert agent: %w", err)
		}
		return nil
	})
}

// ConsumeTokenBudget applies the budget-reset window (spec.md §3: when
// now >= budgetResetAt, reset tokensConsumed and advance budgetResetAt by
// one period) before charging the request, all inside one transaction.
func (db *DB) ConsumeTokenBudget(ctx context.Context, agentID string, requested int, now time.Time) error {
	return db.Tx(ctx, func(tx *sql.Tx) error {
		state, err := getAgentTx(ctx, tx, agentID)
		if err != nil {
			return err
		}
		if state == nil {
			return &SessionNotFound{SessionID: agentID}
		}

		if state.BudgetResetAt != nil && !now.Before(*state.BudgetResetAt) {
			state.TokensConsumed = 0
			next := advancePeriod(*state.BudgetResetAt, state.QuotaPeriod)
			state.BudgetResetAt = &next
		}

		remaining := state.TokenBudget - state.TokensConsumed
		if remaining < 0 {
			remaining = 0
		}
		if requested > remaining {
			return &TokenBudgetExceeded{AgentID: agentID, Requested: requested, Remaining: remaining}
		}

		state.TokensConsumed += requested

		var resetAt any
		if state.BudgetResetAt != nil {
			resetAt = state.BudgetResetAt.UTC().Format(time.RFC3339Nano)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE agents SET tokens_consumed = ?, budget_reset_at = ? WHERE agent_id = ?`,
			state.TokensConsumed, resetAt, agentID)
		if err != nil {
			return fmt.Errorf("update tokens_consumed: %w", err)
		}
		return nil
	})
}

func advancePeriod(t time.Time, period QuotaPeriod) time.Time {
	switch period {
	case QuotaDaily:
		return t.AddDate(0, 0, 1)
	case QuotaMonthly:
		return t.AddDate(0, 1, 0)
	case QuotaYearly:
		return t.AddDate(1, 0, 0)
	default: // Lifetime: never advances in practice, but keep monotonic
		return t.AddDate(100, 0, 0)
	}
}

// querier abstracts over *sql.DB and *sql.Tx for read helpers shared
// between top-level port methods and in-transaction callers.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
