package scheduler

import (
	"fmt"
	"time"

	"github.com/dohr-michael/agentrt/internal/storage"
)

// maxWindowIterations bounds the w_i advance loop so a misconfigured
// interval (e.g. 0) can never spin the tick loop forever.
const maxWindowIterations = 10_000

// advance returns the next candidate activation strictly after w, per the
// schedule's trigger kind. Event-triggered schedules are never advanced
// here; they are driven externally and never appear in DueWindows.
func advance(sched storage.ScheduleRecord, w time.Time) (time.Time, error) {
	switch sched.Trigger {
	case storage.IntervalTrigger:
		if sched.Recurrence.IntervalSec <= 0 {
			return time.Time{}, fmt.Errorf("schedule %s: interval trigger with non-positive intervalSeconds", sched.ScheduleID)
		}
		return w.Add(time.Duration(sched.Recurrence.IntervalSec) * time.Second), nil
	case storage.CronTrigger:
		expr, err := ParseCron(sched.Recurrence.CronExpression)
		if err != nil {
			return time.Time{}, fmt.Errorf("schedule %s: %w", sched.ScheduleID, err)
		}
		return expr.Next(w), nil
	default:
		return time.Time{}, fmt.Errorf("schedule %s: advance called for non-recurring trigger %s", sched.ScheduleID, sched.Trigger)
	}
}

// DueWindows computes the due activation windows for sched at time now,
// implementing the four-step algorithm: no windows when inactive or not yet
// due; walk the w_i = advance(w_{i-1}) chain while w_i <= now; collapse to a
// single "now" window when catch-up is disabled; otherwise drop windows
// older than catchUpWindowSeconds and cap the remainder at
// maxCatchUpRunsPerTick, keeping the oldest surviving windows.
func DueWindows(sched storage.ScheduleRecord, now time.Time) ([]time.Time, error) {
	if sched.Status != storage.ScheduleActive {
		return nil, nil
	}
	if sched.Trigger == storage.EventTrigger {
		return nil, nil
	}
	if sched.NextExecutionAt == nil || sched.NextExecutionAt.After(now) {
		return nil, nil
	}

	var windows []time.Time
	w := *sched.NextExecutionAt
	for i := 0; !w.After(now); i++ {
		if i >= maxWindowIterations {
			return nil, fmt.Errorf("schedule %s: exceeded %d due-window iterations, refusing to continue", sched.ScheduleID, maxWindowIterations)
		}
		windows = append(windows, w)
		next, err := advance(sched, w)
		if err != nil {
			return nil, err
		}
		if !next.After(w) {
			return nil, fmt.Errorf("schedule %s: advance rule did not move forward from %s", sched.ScheduleID, w)
		}
		w = next
	}
	if len(windows) == 0 {
		return nil, nil
	}

	if !sched.AllowsCatchUp {
		return []time.Time{now}, nil
	}

	cutoff := now.Add(-time.Duration(sched.CatchUpWindowSec) * time.Second)
	var kept []time.Time
	for _, win := range windows {
		if win.Before(cutoff) {
			continue
		}
		kept = append(kept, win)
	}
	if sched.MaxCatchUpRunsPerTick > 0 && len(kept) > sched.MaxCatchUpRunsPerTick {
		// The oldest surviving windows are closest to aging out of the
		// catch-up window entirely, so they are the ones caught up on
		// this tick; the newest overflow waits for a later tick.
		kept = kept[:sched.MaxCatchUpRunsPerTick]
	}
	return kept, nil
}
