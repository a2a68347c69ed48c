package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dohr-michael/agentrt/internal/storage"
)

// DefaultTickInterval is T_tick, the interval between dispatchDue calls.
const DefaultTickInterval = 10 * time.Second

// Ticket is a claimed due window handed to an action executor. The executor
// runs the schedule's actionRef and reports back through CompleteExecution.
type Ticket struct {
	ExecutionID   string
	ScheduleID    string
	DueAt         time.Time
	TriggerSource storage.TriggerSource
	StartedAt     time.Time
	ActionRef     string
}

// Executor runs a claimed ticket's action. A returned error records the
// execution as Failed; otherwise it records Succeeded.
type Executor func(ctx context.Context, ticket Ticket) error

// Core drives the tick loop, due-window computation, and concurrency-policy
// enforcement described by the scheduler's design, generalizing the
// teacher's mutex-guarded entry map and done-channel tick loop from a fixed
// skill registry to schedules read through storage.SchedulePort.
type Core struct {
	schedules    storage.SchedulePort
	executor     Executor
	tickInterval time.Duration

	mu       sync.Mutex
	inFlight map[string][]Ticket // scheduleId -> in-flight tickets
	replaced map[string]bool     // executionId -> true once superseded by Replace

	done chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Core.
type Option func(*Core)

// WithTickInterval overrides DefaultTickInterval.
func WithTickInterval(d time.Duration) Option {
	return func(c *Core) { c.tickInterval = d }
}

// NewCore creates a Core. executor is invoked asynchronously for every
// claimed ticket; it may be nil in tests that only exercise claim/skip logic.
func NewCore(schedules storage.SchedulePort, executor Executor, opts ...Option) *Core {
	c := &Core{
		schedules:    schedules,
		executor:     executor,
		tickInterval: DefaultTickInterval,
		inFlight:     make(map[string][]Ticket),
		replaced:     make(map[string]bool),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins the tick loop. The loop is resilient: a tick's error is
// logged and never stops the next tick from running.
func (c *Core) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if err := c.DispatchDue(ctx, now); err != nil {
					slog.Error("scheduler: dispatch tick failed", "error", err)
				}
			}
		}
	}()
}

// Stop halts the tick loop and waits for it to exit. In-flight tickets are
// not cancelled.
func (c *Core) Stop() {
	close(c.done)
	c.wg.Wait()
}

// candidate is one schedule's due window awaiting dispatch-order sorting.
type candidate struct {
	sched storage.ScheduleRecord
	dueAt time.Time
}

// DispatchDue computes every active schedule's due windows at now, sorts
// candidates by (dueAt asc, scheduleId asc), and claims or skips each one
// per its concurrency policy.
func (c *Core) DispatchDue(ctx context.Context, now time.Time) error {
	schedules, err := c.schedules.ListActiveSchedules(ctx)
	if err != nil {
		return err
	}

	var candidates []candidate
	for _, sched := range schedules {
		windows, err := DueWindows(sched, now)
		if err != nil {
			slog.Error("scheduler: due windows", "schedule_id", sched.ScheduleID, "error", err)
			continue
		}
		for _, w := range windows {
			candidates = append(candidates, candidate{sched: sched, dueAt: w})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].dueAt.Equal(candidates[j].dueAt) {
			return candidates[i].dueAt.Before(candidates[j].dueAt)
		}
		return candidates[i].sched.ScheduleID < candidates[j].sched.ScheduleID
	})

	for _, cand := range candidates {
		c.dispatchOne(ctx, cand.sched, cand.dueAt, triggerSourceFor(cand.sched), now)
	}
	return nil
}

func triggerSourceFor(sched storage.ScheduleRecord) storage.TriggerSource {
	if sched.Trigger == storage.IntervalTrigger {
		return storage.IntervalTick
	}
	return storage.CronTick
}

// TriggerNow applies a manual trigger at time now, per spec: an inactive
// schedule records Skipped/ManualTriggerInactive and returns no ticket;
// otherwise the same concurrency policy applies as for a due window.
func (c *Core) TriggerNow(ctx context.Context, sched storage.ScheduleRecord, now time.Time) (*Ticket, error) {
	if sched.Status != storage.ScheduleActive {
		exec := storage.ScheduledExecutionRecord{
			ExecutionID:   storage.NewExecutionID(),
			ScheduleID:    sched.ScheduleID,
			DueAt:         now,
			TriggerSource: storage.ManualTick,
			Outcome:       storage.Skipped,
			StartedAt:     now,
			EndedAt:       &now,
			SkipReason:    storage.SkipManualTriggerInactive,
		}
		if err := c.schedules.RecordExecution(ctx, exec, noAdvance); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return c.dispatchOne(ctx, sched, now, storage.ManualTick, now), nil
}

// dispatchOne claims or skips a single due window and, on a successful
// claim, runs the executor asynchronously.
func (c *Core) dispatchOne(ctx context.Context, sched storage.ScheduleRecord, dueAt time.Time, source storage.TriggerSource, now time.Time) *Ticket {
	ticket, claimed := c.claim(ctx, sched, dueAt, source, now)
	if !claimed {
		return nil
	}
	if c.executor == nil {
		return ticket
	}
	go func(t Ticket) {
		runErr := c.executor(ctx, t)
		outcome := storage.Succeeded
		if runErr != nil {
			outcome = storage.Failed
		}
		if _, completed := c.CompleteExecution(ctx, sched, t, outcome, time.Now()); !completed {
			slog.Warn("scheduler: ticket completed after being replaced", "execution_id", t.ExecutionID, "schedule_id", t.ScheduleID)
		}
	}(*ticket)
	return ticket
}

// claim applies the concurrency policy against the in-flight set for
// sched.ScheduleID, recording Skipped executions inline for Forbid and for
// any tickets superseded by Replace.
func (c *Core) claim(ctx context.Context, sched storage.ScheduleRecord, dueAt time.Time, source storage.TriggerSource, now time.Time) (*Ticket, bool) {
	c.mu.Lock()
	existing := c.inFlight[sched.ScheduleID]

	switch sched.ConcurrencyPolicy {
	case storage.ConcurrencyForbid:
		if len(existing) > 0 {
			c.mu.Unlock()
			c.recordSkip(ctx, sched, dueAt, source, now, storage.SkipConcurrencyForbid)
			return nil, false
		}
	case storage.ConcurrencyReplace:
		if len(existing) > 0 {
			for _, t := range existing {
				c.replaced[t.ExecutionID] = true
			}
			c.inFlight[sched.ScheduleID] = nil
			c.mu.Unlock()
			for _, t := range existing {
				c.recordReplacedSkip(ctx, sched, t, now)
			}
			c.mu.Lock()
		}
	case storage.ConcurrencyAllow:
		// overlap permitted, fall through to claim unconditionally
	}

	ticket := Ticket{
		ExecutionID:   storage.NewExecutionID(),
		ScheduleID:    sched.ScheduleID,
		DueAt:         dueAt,
		TriggerSource: source,
		StartedAt:     now,
		ActionRef:     sched.ActionRef,
	}
	c.inFlight[sched.ScheduleID] = append(c.inFlight[sched.ScheduleID], ticket)
	c.mu.Unlock()
	return &ticket, true
}

func (c *Core) recordSkip(ctx context.Context, sched storage.ScheduleRecord, dueAt time.Time, source storage.TriggerSource, now time.Time, reason storage.SkipReason) {
	exec := storage.ScheduledExecutionRecord{
		ExecutionID:   storage.NewExecutionID(),
		ScheduleID:    sched.ScheduleID,
		DueAt:         dueAt,
		TriggerSource: source,
		Outcome:       storage.Skipped,
		StartedAt:     now,
		EndedAt:       &now,
		SkipReason:    reason,
	}
	if err := c.schedules.RecordExecution(ctx, exec, recurrenceFrom(dueAt)); err != nil {
		slog.Error("scheduler: record skipped execution", "schedule_id", sched.ScheduleID, "error", err)
	}
}

func (c *Core) recordReplacedSkip(ctx context.Context, sched storage.ScheduleRecord, replaced Ticket, now time.Time) {
	exec := storage.ScheduledExecutionRecord{
		ExecutionID:   replaced.ExecutionID,
		ScheduleID:    sched.ScheduleID,
		DueAt:         replaced.DueAt,
		TriggerSource: replaced.TriggerSource,
		Outcome:       storage.Skipped,
		StartedAt:     replaced.StartedAt,
		EndedAt:       &now,
		SkipReason:    storage.SkipConcurrencyReplace,
	}
	if err := c.schedules.RecordExecution(ctx, exec, recurrenceFrom(replaced.DueAt)); err != nil {
		slog.Error("scheduler: record replaced execution", "schedule_id", sched.ScheduleID, "error", err)
	}
}

// CompleteExecution finalizes a ticket: false (no-op) if the ticket was
// replaced or is no longer tracked in-flight, true once it has been removed
// from in-flight tracking and its execution handed to RecordExecution (which
// also advances nextExecutionAt). A RecordExecution failure is logged and the
// result is still true.
func (c *Core) CompleteExecution(ctx context.Context, sched storage.ScheduleRecord, ticket Ticket, outcome storage.ExecutionOutcome, endedAt time.Time) (storage.ScheduledExecutionRecord, bool) {
	c.mu.Lock()
	if c.replaced[ticket.ExecutionID] {
		delete(c.replaced, ticket.ExecutionID)
		c.mu.Unlock()
		return storage.ScheduledExecutionRecord{}, false
	}
	found := false
	tickets := c.inFlight[ticket.ScheduleID]
	for i, t := range tickets {
		if t.ExecutionID == ticket.ExecutionID {
			c.inFlight[ticket.ScheduleID] = append(tickets[:i], tickets[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return storage.ScheduledExecutionRecord{}, false
	}

	exec := storage.ScheduledExecutionRecord{
		ExecutionID:   ticket.ExecutionID,
		ScheduleID:    ticket.ScheduleID,
		DueAt:         ticket.DueAt,
		TriggerSource: ticket.TriggerSource,
		Outcome:       outcome,
		StartedAt:     ticket.StartedAt,
		EndedAt:       &endedAt,
	}
	if err := c.schedules.RecordExecution(ctx, exec, recurrenceFrom(ticket.DueAt)); err != nil {
		slog.Error("scheduler: record execution", "schedule_id", ticket.ScheduleID, "error", err)
		return exec, true
	}
	return exec, true
}

// recurrenceFrom returns a recurrence closure that advances from dueAt (the
// window just processed) rather than the schedule's live nextExecutionAt,
// so concurrently completing tickets for the same schedule each advance
// from their own window instead of compounding off one another.
func recurrenceFrom(dueAt time.Time) func(storage.ScheduleRecord) *time.Time {
	return func(sched storage.ScheduleRecord) *time.Time {
		if sched.Trigger == storage.EventTrigger {
			return nil
		}
		next, err := advance(sched, dueAt)
		if err != nil {
			slog.Error("scheduler: advance next execution", "schedule_id", sched.ScheduleID, "error", err)
			return nil
		}
		return &next
	}
}

func noAdvance(sched storage.ScheduleRecord) *time.Time {
	return sched.NextExecutionAt
}
