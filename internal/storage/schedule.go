package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
)

// SchedulePort manages schedule definitions and their execution history.
// The due-window computation itself (spec.md §4.3) is pure logic living in
// internal/scheduler, which reads schedules through ListActiveSchedules and
// writes outcomes through RecordExecution; this keeps the cron/interval/
// catch-up math unit-testable without a database.
type SchedulePort interface {
	UpsertSchedule(ctx context.Context, record ScheduleRecord) error
	GetSchedule(ctx context.Context, scheduleID string) (*ScheduleRecord, error)
	ListActiveSchedules(ctx context.Context) ([]ScheduleRecord, error)
	RecordExecution(ctx context.Context, exec ScheduledExecutionRecord, recurrence func(sched ScheduleRecord) *time.Time) error
	ListExecutions(ctx context.Context, scheduleID string) ([]ScheduledExecutionRecord, error)
}

func (db *DB) UpsertSchedule(ctx context.Context, r ScheduleRecord) error {
	return db.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO schedules (schedule_id, owner_agent_id, recurrence_label, cron_expression, interval_seconds, trigger, action_ref, status, concurrency_policy, allows_catch_up, auto_disable_after_run, catch_up_window_seconds, max_catch_up_runs_per_tick, last_execution_at, next_execution_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(schedule_id) DO UPDATE SET
				owner_agent_id = excluded.owner_agent_id,
				recurrence_label = excluded.recurrence_label,
				cron_expression = excluded.cron_expression,
				interval_seconds = excluded.interval_seconds,
				trigger = excluded.trigger,
				action_ref = excluded.action_ref,
				status = excluded.status,
				concurrency_policy = excluded.concurrency_policy,
				allows_catch_up = excluded.allows_catch_up,
				auto_disable_after_run = excluded.auto_disable_after_run,
				catch_up_window_seconds = excluded.catch_up_window_seconds,
				max_catch_up_runs_per_tick = excluded.max_catch_up_runs_per_tick,
				last_execution_at = excluded.last_execution_at,
				next_execution_at = excluded.next_execution_at`,
			r.ScheduleID, r.OwnerAgentID, r.Recurrence.Label, nullStr(r.Recurrence.CronExpression), nullInt(r.Recurrence.IntervalSec),
			r.Trigger, r.ActionRef, r.Status, r.ConcurrencyPolicy, r.AllowsCatchUp, r.AutoDisableAfterRun,
			r.CatchUpWindowSec, r.MaxCatchUpRunsPerTick, nullTime(r.LastExecutionAt), nullTime(r.NextExecutionAt))
		if err != nil {
			return fmt.Errorf("upsert schedule: %w", err)
		}
		return nil
	})
}

func nullStr(s string) driver.Value {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) driver.Value {
	if n == 0 {
		return nil
	}
	return int64(n)
}

func nullTime(t *time.Time) driver.Value {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (db *DB) GetSchedule(ctx context.Context, scheduleID string) (*ScheduleRecord, error) {
	return getScheduleTx(ctx, db.sql, scheduleID)
}

func getScheduleTx(ctx context.Context, q querier, scheduleID string) (*ScheduleRecord, error) {
	row := q.QueryRowContext(ctx, scheduleSelectSQL+` WHERE schedule_id = ?`, scheduleID)
	r, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

const scheduleSelectSQL = `
	SELECT schedule_id, owner_agent_id, recurrence_label, COALESCE(cron_expression, ''), COALESCE(interval_seconds, 0),
	       trigger, action_ref, status, concurrency_policy, allows_catch_up, auto_disable_after_run,
	       catch_up_window_seconds, max_catch_up_runs_per_tick, last_execution_at, next_execution_at
	FROM schedules`

func scanSchedule(row *sql.Row) (*ScheduleRecord, error) {
	var r ScheduleRecord
	var lastExec, nextExec sql.NullString
	if err := row.Scan(&r.ScheduleID, &r.OwnerAgentID, &r.Recurrence.Label, &r.Recurrence.CronExpression, &r.Recurrence.IntervalSec,
		&r.Trigger, &r.ActionRef, &r.Status, &r.ConcurrencyPolicy, &r.AllowsCatchUp, &r.AutoDisableAfterRun,
		&r.CatchUpWindowSec, &r.MaxCatchUpRunsPerTick, &lastExec, &nextExec); err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}
	if lastExec.Valid && lastExec.String != "" {
		t, err := time.Parse(time.RFC3339Nano, lastExec.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_execution_at: %w", err)
		}
		r.LastExecutionAt = &t
	}
	if nextExec.Valid && nextExec.String != "" {
		t, err := time.Parse(time.RFC3339Nano, nextExec.String)
		if err != nil {
			return nil, fmt.Errorf("parse next_execution_at: %w", err)
		}
		r.NextExecutionAt = &t
	}
	return &r, nil
}

func (db *DB) ListActiveSchedules(ctx context.Context) ([]ScheduleRecord, error) {
	rows, err := db.sql.QueryContext(ctx, scheduleSelectSQL+` WHERE status = ? ORDER BY schedule_id ASC`, ScheduleActive)
	if err != nil {
		return nil, fmt.Errorf("list active schedules: %w", err)
	}
	defer rows.Close()

	var result []ScheduleRecord
	for rows.Next() {
		var r ScheduleRecord
		var lastExec, nextExec sql.NullString
		if err := rows.Scan(&r.ScheduleID, &r.OwnerAgentID, &r.Recurrence.Label, &r.Recurrence.CronExpression, &r.Recurrence.IntervalSec,
			&r.Trigger, &r.ActionRef, &r.Status, &r.ConcurrencyPolicy, &r.AllowsCatchUp, &r.AutoDisableAfterRun,
			&r.CatchUpWindowSec, &r.MaxCatchUpRunsPerTick, &lastExec, &nextExec); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		if lastExec.Valid && lastExec.String != "" {
			t, err := time.Parse(time.RFC3339Nano, lastExec.String)
			if err != nil {
				return nil, fmt.Errorf("parse last_execution_at: %w", err)
			}
			r.LastExecutionAt = &t
		}
		if nextExec.Valid && nextExec.String != "" {
			t, err := time.Parse(time.RFC3339Nano, nextExec.String)
			if err != nil {
				return nil, fmt.Errorf("parse next_execution_at: %w", err)
			}
			r.NextExecutionAt = &t
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// RecordExecution atomically inserts the execution and updates the owning
// schedule per spec.md §4.1: if AutoDisableAfterRun, status becomes
// Disabled and nextExecutionAt is cleared; otherwise lastExecutionAt is set
// to endedAt (or startedAt if still running) and nextExecutionAt is
// recomputed by recurrence, supplied by the caller since it depends on the
// cron/interval rule living in internal/scheduler.
func (db *DB) RecordExecution(ctx context.Context, exec ScheduledExecutionRecord, recurrence func(sched ScheduleRecord) *time.Time) error {
	return db.Tx(ctx, func(tx *sql.Tx) error {
		var endedAt any
		if exec.EndedAt != nil {
			endedAt = exec.EndedAt.UTC().Format(time.RFC3339Nano)
		}
		var skipReason any
		if exec.SkipReason != "" {
			skipReason = string(exec.SkipReason)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scheduled_executions (execution_id, schedule_id, due_at, trigger_source, outcome, started_at, ended_at, skip_reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(execution_id) DO NOTHING`,
			exec.ExecutionID, exec.ScheduleID, exec.DueAt.UTC().Format(time.RFC3339Nano), exec.TriggerSource, exec.Outcome,
			exec.StartedAt.UTC().Format(time.RFC3339Nano), endedAt, skipReason)
		if err != nil {
			return fmt.Errorf("insert execution: %w", err)
		}

		sched, err := getScheduleTx(ctx, tx, exec.ScheduleID)
		if err != nil {
			return err
		}
		if sched == nil {
			return fmt.Errorf("schedule not found: %s", exec.ScheduleID)
		}

		if sched.AutoDisableAfterRun {
			sched.Status = ScheduleDisabled
			sched.NextExecutionAt = nil
		} else {
			completedAt := exec.StartedAt
			if exec.EndedAt != nil {
				completedAt = *exec.EndedAt
			}
			sched.LastExecutionAt = &completedAt
			sched.NextExecutionAt = recurrence(*sched)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE schedules SET status = ?, last_execution_at = ?, next_execution_at = ? WHERE schedule_id = ?`,
			sched.Status, nullTime(sched.LastExecutionAt), nullTime(sched.NextExecutionAt), sched.ScheduleID)
		if err != nil {
			return fmt.Errorf("update schedule after execution: %w", err)
		}
		return nil
	})
}

func (db *DB) ListExecutions(ctx context.Context, scheduleID string) ([]ScheduledExecutionRecord, error) {
	rows, err := db.sql.QueryContext(ctx, `
		SELECT execution_id, schedule_id, due_at, trigger_source, outcome, started_at, ended_at, COALESCE(skip_reason, '')
		FROM scheduled_executions WHERE schedule_id = ? ORDER BY due_at ASC, execution_id ASC`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var result []ScheduledExecutionRecord
	for rows.Next() {
		var e ScheduledExecutionRecord
		var dueAt, startedAt string
		var endedAt sql.NullString
		if err := rows.Scan(&e.ExecutionID, &e.ScheduleID, &dueAt, &e.TriggerSource, &e.Outcome, &startedAt, &endedAt, &e.SkipReason); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		due, err := time.Parse(time.RFC3339Nano, dueAt)
		if err != nil {
			return nil, fmt.Errorf("parse due_at: %w", err)
		}
		e.DueAt = due
		started, err := time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		e.StartedAt = started
		if endedAt.Valid && endedAt.String != "" {
			t, err := time.Parse(time.RFC3339Nano, endedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse ended_at: %w", err)
			}
			e.EndedAt = &t
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
